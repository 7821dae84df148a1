package sensor

import (
	"context"
	"errors"
	"fmt"
)

type Source string

const (
	SourceUV      Source = "uv"
	SourceGas     Source = "gas"
	SourceClimate Source = "climate"
	SourceWind    Source = "wind"
)

var (
	// ErrInvalidRange is returned when a chip reports a value it cannot produce.
	ErrInvalidRange = errors.New("reading out of range")
	// ErrMalformed is returned when a response fails its integrity check.
	ErrMalformed = errors.New("malformed response")
)

// Reading is one raw value from one sensor. The set of implementations is
// closed: UVReading, GasReading, ClimateReading and WindRaw.
type Reading interface {
	Source() Source
	reading()
}

// UVReading is the chip-computed UV index, not yet rounded.
type UVReading struct {
	Index float64 `json:"uv_index"`
}

// GasReading holds equivalent CO2 (ppm) and total VOC (ppb).
type GasReading struct {
	ECO2 uint16 `json:"eco2_ppm"`
	TVOC uint16 `json:"tvoc_ppb"`
}

// ClimateReading is already in physical units: °C, %RH, hPa and meters.
type ClimateReading struct {
	Temperature float64 `json:"temperature_c"`
	Humidity    float64 `json:"humidity_pct"`
	Pressure    float64 `json:"pressure_hpa"`
	Altitude    float64 `json:"altitude_m"`
}

// WindRaw is the anemometer output as a 16-bit count of the 3.3V reference.
type WindRaw uint16

func (UVReading) Source() Source      { return SourceUV }
func (GasReading) Source() Source     { return SourceGas }
func (ClimateReading) Source() Source { return SourceClimate }
func (WindRaw) Source() Source        { return SourceWind }

func (UVReading) reading()      {}
func (GasReading) reading()     {}
func (ClimateReading) reading() {}
func (WindRaw) reading()        {}

// Reader is one initialized sensor chip.
type Reader interface {
	Source() Source
	Read(ctx context.Context) (Reading, error)
	Close() error
}

// Fault reports which sensor failed during a read.
type Fault struct {
	Source Source
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s sensor: %v", f.Source, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
