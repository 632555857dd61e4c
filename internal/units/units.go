// Package units provides shared constants and conversions for angular units
package units

import (
	"math"

	"github.com/golang/geo/s1"
)

// Unit constants
const (
	Deg    = "deg"
	Arcmin = "arcmin"
	Arcsec = "arcsec"
	Rad    = "rad"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Deg, Arcmin, Arcsec, Rad}

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
	return "deg, arcmin, arcsec, rad"
}

// ConvertAngle expresses an angle in the target units.
// Unknown units fall back to degrees.
func ConvertAngle(a s1.Angle, targetUnits string) float64 {
	switch targetUnits {
	case Arcmin:
		return a.Degrees() * 60
	case Arcsec:
		return a.Degrees() * 3600
	case Rad:
		return a.Radians()
	default:
		return a.Degrees()
	}
}

// SquareDegrees converts a solid angle in steradians to square degrees.
func SquareDegrees(sr float64) float64 {
	return sr * (180 / math.Pi) * (180 / math.Pi)
}
