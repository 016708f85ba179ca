package marker

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrPayload is matched by every payload parse failure.
var ErrPayload = errors.New("invalid marker payload")

// payloadSegments is the number of comma-separated fields in a payload.
const payloadSegments = 3

// ReferencePose is the information encoded in a marker payload.
type ReferencePose struct {
	SideCM float64 // printed side length of the marker
	RefXM  float64 // reference ground position, metres
	RefYM  float64
}

// ParseError describes why a payload could not be decoded.
type ParseError struct {
	Payload string
	Field   string // empty when the payload shape itself is wrong
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("marker payload %q: %v", e.Payload, e.Err)
	}
	return fmt.Sprintf("marker payload %q: field %s: %v", e.Payload, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports ErrPayload as matching so callers need not know the concrete type.
func (e *ParseError) Is(target error) bool { return target == ErrPayload }

// ParsePayload decodes "side_cm,ref_x_m,ref_y_m". It has no side effects.
func ParsePayload(payload string) (ReferencePose, error) {
	segments := strings.Split(payload, ",")
	if len(segments) != payloadSegments {
		return ReferencePose{}, &ParseError{
			Payload: payload,
			Err:     fmt.Errorf("expected %d segments, got %d", payloadSegments, len(segments)),
		}
	}

	side, err := parseSegment(payload, "side_cm", segments[0])
	if err != nil {
		return ReferencePose{}, err
	}
	if side <= 0 {
		return ReferencePose{}, &ParseError{Payload: payload, Field: "side_cm", Err: fmt.Errorf("must be positive, got %v", side)}
	}
	x, err := parseSegment(payload, "ref_x_m", segments[1])
	if err != nil {
		return ReferencePose{}, err
	}
	y, err := parseSegment(payload, "ref_y_m", segments[2])
	if err != nil {
		return ReferencePose{}, err
	}

	return ReferencePose{SideCM: side, RefXM: x, RefYM: y}, nil
}

// ParseDetectionPayload decodes the raw bytes returned by a marker decoder.
func ParseDetectionPayload(b []byte) (ReferencePose, error) {
	if !utf8.Valid(b) {
		return ReferencePose{}, &ParseError{Payload: string(b), Err: errors.New("not valid UTF-8")}
	}
	return ParsePayload(string(b))
}

func parseSegment(payload, field, segment string) (float64, error) {
	// The generator never pads fields, but hand-typed markers sometimes do.
	segment = strings.TrimSpace(segment)
	if isHexFloat(segment) {
		return 0, &ParseError{Payload: payload, Field: field, Err: fmt.Errorf("not a decimal number: %q", segment)}
	}
	v, err := strconv.ParseFloat(segment, 64)
	if err != nil {
		return 0, &ParseError{Payload: payload, Field: field, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{Payload: payload, Field: field, Err: fmt.Errorf("not finite: %q", segment)}
	}
	return v, nil
}

// isHexFloat reports whether s uses the 0x prefix that strconv.ParseFloat
// accepts but decimal payloads never contain.
func isHexFloat(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// FormatPayload renders a reference pose in the payload format written by
// the marker generator.
func FormatPayload(p ReferencePose) string {
	return strings.Join([]string{
		strconv.FormatFloat(p.SideCM, 'f', -1, 64),
		strconv.FormatFloat(p.RefXM, 'f', -1, 64),
		strconv.FormatFloat(p.RefYM, 'f', -1, 64),
	}, ",")
}
