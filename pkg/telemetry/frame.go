// Package telemetry holds the converted reading set of one acquisition cycle.
package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/ericogr/weather-station/pkg/convert"
	"github.com/ericogr/weather-station/pkg/sensor"
)

// ErrIncomplete is returned when a reading set lacks a sensor or repeats one.
var ErrIncomplete = errors.New("incomplete reading set")

// Frame is one cycle's converted readings. It is only built from a complete
// reading set and is passed by value.
type Frame struct {
	UVIndex   float64               `json:"uv_index"`
	Climate   sensor.ClimateReading `json:"climate"`
	Gas       sensor.GasReading     `json:"gas"`
	WindSpeed float64               `json:"wind_speed_ms"`
	Timestamp time.Time             `json:"timestamp"`
}

// NewFrame converts one reading of every source into a Frame.
func NewFrame(readings []sensor.Reading, cal convert.WindCalibration, ts time.Time) (Frame, error) {
	var (
		f    Frame
		seen = map[sensor.Source]bool{}
	)
	for _, r := range readings {
		if r == nil {
			return Frame{}, fmt.Errorf("%w: nil reading", ErrIncomplete)
		}
		if seen[r.Source()] {
			return Frame{}, fmt.Errorf("%w: duplicate %s reading", ErrIncomplete, r.Source())
		}
		seen[r.Source()] = true

		switch v := r.(type) {
		case sensor.UVReading:
			f.UVIndex = convert.UVIndex(v.Index)
		case sensor.GasReading:
			f.Gas = v
		case sensor.ClimateReading:
			f.Climate = v
		case sensor.WindRaw:
			f.WindSpeed = convert.WindSpeed(uint16(v), cal)
		}
	}
	for _, s := range []sensor.Source{sensor.SourceUV, sensor.SourceGas, sensor.SourceClimate, sensor.SourceWind} {
		if !seen[s] {
			return Frame{}, fmt.Errorf("%w: missing %s reading", ErrIncomplete, s)
		}
	}
	f.Timestamp = ts
	return f, nil
}

// Fields flattens the frame into named numeric fields, the shape used by
// dashboards and time series backends.
func (f Frame) Fields() map[string]interface{} {
	return map[string]interface{}{
		FieldUVIndex:     f.UVIndex,
		FieldTemperature: f.Climate.Temperature,
		FieldHumidity:    f.Climate.Humidity,
		FieldPressure:    f.Climate.Pressure,
		FieldAltitude:    f.Climate.Altitude,
		FieldECO2:        int(f.Gas.ECO2),
		FieldTVOC:        int(f.Gas.TVOC),
		FieldWindSpeed:   f.WindSpeed,
	}
}

const (
	FieldUVIndex     = "uv_index"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldPressure    = "pressure"
	FieldAltitude    = "altitude"
	FieldECO2        = "eco2"
	FieldTVOC        = "tvoc"
	FieldWindSpeed   = "wind_speed"
)

// FieldUnits maps each field to its unit of measurement.
var FieldUnits = map[string]string{
	FieldUVIndex:     "UV index",
	FieldTemperature: "°C",
	FieldHumidity:    "%",
	FieldPressure:    "hPa",
	FieldAltitude:    "m",
	FieldECO2:        "ppm",
	FieldTVOC:        "ppb",
	FieldWindSpeed:   "m/s",
}

// Payload is the JSON document sent to message based sinks.
type Payload struct {
	StationID string `json:"station_id"`
	BootID    string `json:"boot_id"`
	Frame
}

func NewPayload(stationID, bootID string, f Frame) Payload {
	return Payload{StationID: stationID, BootID: bootID, Frame: f}
}
