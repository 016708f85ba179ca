// Package units provides shared length and angle conversions.
package units

import "math"

// Length unit constants
const (
	M  = "m"
	CM = "cm"
	MM = "mm"
)

// CentimetersPerMeter is the scale between the payload's metres and the
// centimetres used for marker geometry.
const CentimetersPerMeter = 100.0

// ValidUnits contains all valid output length units
var ValidUnits = []string{M, CM, MM}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, cm, mm"
}

// MetersToCentimeters converts metres to centimetres.
func MetersToCentimeters(m float64) float64 { return m * CentimetersPerMeter }

// CentimetersToMeters converts centimetres to metres.
func CentimetersToMeters(cm float64) float64 { return cm / CentimetersPerMeter }

// ConvertLength converts a length in metres to the target units.
// Estimates are carried in metres.
func ConvertLength(meters float64, targetUnits string) float64 {
	switch targetUnits {
	case CM:
		return meters * CentimetersPerMeter
	case MM:
		return meters * 1000
	default:
		return meters // default to metres if unknown unit
	}
}

// RadiansToDegrees converts an angle in radians to degrees.
func RadiansToDegrees(rad float64) float64 { return rad * 180 / math.Pi }
