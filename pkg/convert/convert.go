// Package convert maps raw sensor values to physical units.
package convert

import "math"

const (
	// ADCFullScale is the largest count a 16-bit analog input reports.
	ADCFullScale = 65535
	// ADCReferenceVolts is the analog reference of the wind input.
	ADCReferenceVolts = 3.3
)

// WindCalibration describes the anemometer transfer line: voltages between
// VoltsMin and VoltsMax map linearly onto SpeedMin..SpeedMax (m/s).
type WindCalibration struct {
	VoltsMin float64 `json:"volts_min" yaml:"volts_min"`
	VoltsMax float64 `json:"volts_max" yaml:"volts_max"`
	SpeedMin float64 `json:"speed_min" yaml:"speed_min"`
	SpeedMax float64 `json:"speed_max" yaml:"speed_max"`
}

// DefaultWindCalibration is the Adafruit anemometer (0.4V..2.0V, 0..32.4 m/s).
func DefaultWindCalibration() WindCalibration {
	return WindCalibration{VoltsMin: 0.4, VoltsMax: 2.0, SpeedMin: 0.0, SpeedMax: 32.4}
}

// MapRange linearly maps x from [inMin,inMax] onto [outMin,outMax]. The result
// saturates at the output bounds instead of extrapolating. A zero-width input
// domain maps to the midpoint of the output range.
func MapRange(x, inMin, inMax, outMin, outMax float64) float64 {
	inRange := inMax - inMin
	inDelta := x - inMin
	var mapped float64
	switch {
	case inRange != 0:
		mapped = inDelta / inRange
	case inDelta != 0:
		mapped = inDelta
	default:
		mapped = 0.5
	}
	mapped = mapped*(outMax-outMin) + outMin
	if outMin <= outMax {
		return math.Max(math.Min(mapped, outMax), outMin)
	}
	return math.Min(math.Max(mapped, outMax), outMin)
}

// ADCToVolts converts a 16-bit analog count into volts at the reference.
func ADCToVolts(raw uint16) float64 {
	return float64(raw) / ADCFullScale * ADCReferenceVolts
}

// WindSpeed converts an anemometer count into m/s.
func WindSpeed(raw uint16, cal WindCalibration) float64 {
	return MapRange(ADCToVolts(raw), cal.VoltsMin, cal.VoltsMax, cal.SpeedMin, cal.SpeedMax)
}

// UVIndex rounds a UV index to 3 decimal digits.
func UVIndex(v float64) float64 {
	return math.Round(v*1000) / 1000
}
