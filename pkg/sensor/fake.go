package sensor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/ericogr/weather-station/pkg/config"
)

// ErrSimulated is the cause of injected faults.
var ErrSimulated = errors.New("simulated bus error")

// FakeSensor produces plausible random readings for one source and fails
// with probability faultRate.
type FakeSensor struct {
	source    Source
	faultRate float64
	seaLevel  float64
	rnd       *rand.Rand
	mu        sync.Mutex
}

func NewFakeSensor(source Source, faultRate, seaLevelHPa float64, seed int64) *FakeSensor {
	return &FakeSensor{source: source, faultRate: faultRate, seaLevel: seaLevelHPa, rnd: rand.New(rand.NewSource(seed))}
}

// NewSimulatedPort builds a port whose four sensors are fakes.
func NewSimulatedPort(cfg config.Config) *Port {
	seed := time.Now().UnixNano()
	mk := func(s Source, i int64) Reader {
		return NewFakeSensor(s, cfg.SimulationFaultRate, cfg.SeaLevelPressure, seed+i)
	}
	return NewPort(mk(SourceUV, 0), mk(SourceGas, 1), mk(SourceClimate, 2), mk(SourceWind, 3))
}

func (f *FakeSensor) Source() Source { return f.source }

func (f *FakeSensor) Read(_ context.Context) (Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.faultRate > 0 && f.rnd.Float64() < f.faultRate {
		return nil, &Fault{Source: f.source, Err: ErrSimulated}
	}
	switch f.source {
	case SourceUV:
		return UVReading{Index: f.rnd.Float64() * 11}, nil
	case SourceGas:
		return GasReading{ECO2: uint16(400 + f.rnd.Intn(1600)), TVOC: uint16(f.rnd.Intn(600))}, nil
	case SourceClimate:
		pressure := f.seaLevel - 20 + f.rnd.Float64()*30
		return ClimateReading{
			Temperature: -5 + f.rnd.Float64()*40,
			Humidity:    20 + f.rnd.Float64()*70,
			Pressure:    pressure,
			Altitude:    altitude(pressure, f.seaLevel),
		}, nil
	default:
		return WindRaw(f.rnd.Intn(65536)), nil
	}
}

func (f *FakeSensor) Close() error { return nil }
