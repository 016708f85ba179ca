package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"

	"github.com/banshee-data/markerpose/internal/serialmux"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MARKERPOSE_"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the on-disk configuration. Every field is optional; the Get*
// methods supply defaults for fields that are not set.
type Config struct {
	// Camera
	FOVRadians    *float64 `json:"fov_radians,omitempty"`
	DefaultSideCM *float64 `json:"default_side_cm,omitempty"`
	CameraDevice  *string  `json:"camera_device,omitempty"`
	CaptureWidth  *int     `json:"capture_width,omitempty"`
	CaptureHeight *int     `json:"capture_height,omitempty"`
	AutoFocus     *bool    `json:"auto_focus,omitempty"`

	// Estimation compatibility switches
	LegacyHullIndexing  *bool `json:"legacy_hull_indexing,omitempty"`
	LegacyDegreeLiteral *bool `json:"legacy_degree_literal,omitempty"`

	// Dev mode replay
	FixturesPath    *string `json:"fixtures_path,omitempty"`
	FixtureInterval *string `json:"fixture_interval,omitempty"` // duration string like "33ms"
	FixtureLoop     *bool   `json:"fixture_loop,omitempty"`

	AcquisitionRetry *string `json:"acquisition_retry,omitempty"` // duration string

	// Sinks
	SerialPort    *string                `json:"serial_port,omitempty"`
	Serial        *serialmux.PortOptions `json:"serial,omitempty"`
	KafkaBrokers  *string                `json:"kafka_brokers,omitempty"`
	KafkaTopic    *string                `json:"kafka_topic,omitempty"`
	RedisAddr     *string                `json:"redis_addr,omitempty"`
	RedisPassword *string                `json:"redis_password,omitempty"`
	RedisDB       *int                   `json:"redis_db,omitempty"`
	RedisChannel  *string                `json:"redis_channel,omitempty"`
	OutputUnits   *string                `json:"output_units,omitempty"`

	// Service
	HealthListen     *string `json:"health_listen,omitempty"`
	HealthStaleAfter *string `json:"health_stale_after,omitempty"` // duration string
	LogLevel         *string `json:"log_level,omitempty"`
	LogFile          *string `json:"log_file,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Load reads a Config from a JSON file. Fields omitted from the file keep
// their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks the values that can be checked without defaults applied.
func (c *Config) Validate() error {
	durations := []struct {
		name string
		v    *string
	}{
		{"fixture_interval", c.FixtureInterval},
		{"acquisition_retry", c.AcquisitionRetry},
		{"health_stale_after", c.HealthStaleAfter},
	}
	for _, d := range durations {
		if d.v != nil && *d.v != "" {
			if _, err := time.ParseDuration(*d.v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
			}
		}
	}
	if c.FOVRadians != nil && !(*c.FOVRadians > 0 && *c.FOVRadians < math.Pi) {
		return fmt.Errorf("fov_radians must be in (0, pi), got %f", *c.FOVRadians)
	}
	if c.DefaultSideCM != nil && !(*c.DefaultSideCM > 0) {
		return fmt.Errorf("default_side_cm must be positive, got %f", *c.DefaultSideCM)
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from MARKERPOSE_* variables read through
// getenv. Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(dst **string) func(string) error {
		return func(v string) error { *dst = ptrString(v); return nil }
	}
	flt := func(dst **float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*dst = ptrFloat64(f)
			return nil
		}
	}
	integer := func(dst **int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = ptrInt(n)
			return nil
		}
	}
	boolean := func(dst **bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*dst = ptrBool(b)
			return nil
		}
	}

	overrides := []struct {
		key   string
		apply func(string) error
	}{
		{"FOV_RADIANS", flt(&c.FOVRadians)},
		{"DEFAULT_SIDE_CM", flt(&c.DefaultSideCM)},
		{"CAMERA_DEVICE", str(&c.CameraDevice)},
		{"CAPTURE_WIDTH", integer(&c.CaptureWidth)},
		{"CAPTURE_HEIGHT", integer(&c.CaptureHeight)},
		{"AUTO_FOCUS", boolean(&c.AutoFocus)},
		{"LEGACY_HULL_INDEXING", boolean(&c.LegacyHullIndexing)},
		{"LEGACY_DEGREE_LITERAL", boolean(&c.LegacyDegreeLiteral)},
		{"FIXTURES_PATH", str(&c.FixturesPath)},
		{"FIXTURE_INTERVAL", str(&c.FixtureInterval)},
		{"FIXTURE_LOOP", boolean(&c.FixtureLoop)},
		{"ACQUISITION_RETRY", str(&c.AcquisitionRetry)},
		{"SERIAL_PORT", str(&c.SerialPort)},
		{"KAFKA_BROKERS", str(&c.KafkaBrokers)},
		{"KAFKA_TOPIC", str(&c.KafkaTopic)},
		{"REDIS_ADDR", str(&c.RedisAddr)},
		{"REDIS_PASSWORD", str(&c.RedisPassword)},
		{"REDIS_DB", integer(&c.RedisDB)},
		{"REDIS_CHANNEL", str(&c.RedisChannel)},
		{"OUTPUT_UNITS", str(&c.OutputUnits)},
		{"HEALTH_LISTEN", str(&c.HealthListen)},
		{"HEALTH_STALE_AFTER", str(&c.HealthStaleAfter)},
		{"LOG_LEVEL", str(&c.LogLevel)},
		{"LOG_FILE", str(&c.LogFile)},
	}
	for _, o := range overrides {
		v := strings.TrimSpace(getenv(EnvPrefix + o.key))
		if v == "" {
			continue
		}
		if err := o.apply(v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, o.key, err)
		}
	}
	return c.Validate()
}

// GetFOVRadians returns the vertical field of view or the default.
func (c *Config) GetFOVRadians() float64 {
	if c.FOVRadians == nil {
		return 0.74 // default
	}
	return *c.FOVRadians
}

// GetDefaultSideCM returns the side length assumed before any payload is
// decoded.
func (c *Config) GetDefaultSideCM() float64 {
	if c.DefaultSideCM == nil {
		return 6 // default
	}
	return *c.DefaultSideCM
}

func (c *Config) GetCameraDevice() string {
	if c.CameraDevice == nil || *c.CameraDevice == "" {
		return "0" // default
	}
	return *c.CameraDevice
}

func (c *Config) GetAutoFocus() bool {
	if c.AutoFocus == nil {
		return true // default
	}
	return *c.AutoFocus
}

func (c *Config) GetFixtureInterval() time.Duration {
	return durationOr(c.FixtureInterval, 33*time.Millisecond)
}

func (c *Config) GetFixtureLoop() bool {
	return c.FixtureLoop != nil && *c.FixtureLoop
}

func (c *Config) GetAcquisitionRetry() time.Duration {
	return durationOr(c.AcquisitionRetry, 100*time.Millisecond)
}

func (c *Config) GetKafkaTopic() string {
	return stringOr(c.KafkaTopic, "markerpose.estimates")
}

func (c *Config) GetRedisChannel() string {
	return stringOr(c.RedisChannel, "markerpose:estimates")
}

func (c *Config) GetOutputUnits() string {
	return stringOr(c.OutputUnits, "m")
}

// GetHealthListen returns the gRPC health address. An explicit empty
// string disables the health server.
func (c *Config) GetHealthListen() string {
	if c.HealthListen == nil {
		return ":50051" // default
	}
	return *c.HealthListen
}

func (c *Config) GetHealthStaleAfter() time.Duration {
	return durationOr(c.HealthStaleAfter, 2*time.Second)
}

func (c *Config) GetLogLevel() string {
	return stringOr(c.LogLevel, "info")
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

// Settings is the flattened configuration with every default applied.
type Settings struct {
	FOVRadians    float64 `validate:"gt=0,lt=3.141592653589793"`
	DefaultSideCM float64 `validate:"gt=0"`
	CameraDevice  string  `validate:"required"`
	CaptureWidth  int     `validate:"gte=0"`
	CaptureHeight int     `validate:"gte=0"`
	AutoFocus     bool

	LegacyHullIndexing  bool
	LegacyDegreeLiteral bool

	FixturesPath     string        `validate:"omitempty,endswith=.json"`
	FixtureInterval  time.Duration `validate:"gte=0"`
	FixtureLoop      bool
	AcquisitionRetry time.Duration `validate:"gte=0"`

	SerialPort    string
	Serial        serialmux.PortOptions
	KafkaBrokers  string
	KafkaTopic    string `validate:"required_with=KafkaBrokers"`
	RedisAddr     string `validate:"omitempty,hostname_port"`
	RedisPassword string
	RedisDB       int    `validate:"gte=0"`
	RedisChannel  string `validate:"required_with=RedisAddr"`
	OutputUnits   string `validate:"oneof=m cm mm"`

	HealthListen     string        `validate:"omitempty,hostname_port"`
	HealthStaleAfter time.Duration `validate:"gt=0"`
	LogLevel         string        `validate:"oneof=trace debug info warn warning error"`
	LogFile          string
}

// DevMode reports whether frames are replayed from a fixture file instead
// of a camera.
func (s Settings) DevMode() bool { return s.FixturesPath != "" }

// Resolve applies defaults and validates the result.
func (c *Config) Resolve() (Settings, error) {
	serial := serialmux.PortOptions{}
	if c.Serial != nil {
		serial = *c.Serial
	}
	serial, err := serial.Normalize()
	if err != nil {
		return Settings{}, fmt.Errorf("serial: %w", err)
	}

	s := Settings{
		FOVRadians:          c.GetFOVRadians(),
		DefaultSideCM:       c.GetDefaultSideCM(),
		CameraDevice:        c.GetCameraDevice(),
		CaptureWidth:        deref(c.CaptureWidth),
		CaptureHeight:       deref(c.CaptureHeight),
		AutoFocus:           c.GetAutoFocus(),
		LegacyHullIndexing:  deref(c.LegacyHullIndexing),
		LegacyDegreeLiteral: deref(c.LegacyDegreeLiteral),
		FixturesPath:        deref(c.FixturesPath),
		FixtureInterval:     c.GetFixtureInterval(),
		FixtureLoop:         c.GetFixtureLoop(),
		AcquisitionRetry:    c.GetAcquisitionRetry(),
		SerialPort:          deref(c.SerialPort),
		Serial:              serial,
		KafkaBrokers:        deref(c.KafkaBrokers),
		KafkaTopic:          c.GetKafkaTopic(),
		RedisAddr:           deref(c.RedisAddr),
		RedisPassword:       deref(c.RedisPassword),
		RedisDB:             deref(c.RedisDB),
		RedisChannel:        c.GetRedisChannel(),
		OutputUnits:         c.GetOutputUnits(),
		HealthListen:        c.GetHealthListen(),
		HealthStaleAfter:    c.GetHealthStaleAfter(),
		LogLevel:            c.GetLogLevel(),
		LogFile:             deref(c.LogFile),
	}
	if err := validator.New().Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
