package sensor

import (
	"context"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/ericogr/weather-station/pkg/config"
)

// Port reads every sensor of the station in a fixed order over the shared bus.
type Port struct {
	readers []Reader
	bus     i2c.BusCloser
}

// NewPort builds a port that reads uv, gas, climate and wind in that order.
func NewPort(uv, gas, climate, wind Reader) *Port {
	return &Port{readers: []Reader{uv, gas, climate, wind}}
}

// ReadAll returns one reading per sensor, or a *Fault naming the first sensor
// that failed. Readings taken before the failure are discarded.
func (p *Port) ReadAll(ctx context.Context) ([]Reading, error) {
	out := make([]Reading, 0, len(p.readers))
	for _, r := range p.readers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := r.Read(ctx)
		if err != nil {
			var fault *Fault
			if errors.As(err, &fault) {
				return nil, fault
			}
			return nil, &Fault{Source: r.Source(), Err: err}
		}
		if v == nil || v.Source() != r.Source() {
			return nil, &Fault{Source: r.Source(), Err: ErrMalformed}
		}
		out = append(out, v)
	}
	return out, nil
}

// Close releases every reader and the bus.
func (p *Port) Close() error {
	var errs []error
	for _, r := range p.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.Source(), err))
		}
	}
	if p.bus != nil {
		if err := p.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewPortFromConfig initializes the host, opens the I²C bus and brings up
// every sensor chip. Any initialization failure is returned.
func NewPortFromConfig(cfg config.Config) (*Port, error) {
	if cfg.SensorType == config.SensorTypeSimulation {
		return NewSimulatedPort(cfg), nil
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}

	var opened []Reader
	fail := func(err error) (*Port, error) {
		for _, r := range opened {
			_ = r.Close()
		}
		_ = bus.Close()
		return nil, err
	}

	uv, err := NewVEML6075(bus, cfg.UV)
	if err != nil {
		return fail(fmt.Errorf("veml6075: %w", err))
	}
	opened = append(opened, uv)

	gas, err := NewSGP30(bus, cfg.Gas)
	if err != nil {
		return fail(fmt.Errorf("sgp30: %w", err))
	}
	opened = append(opened, gas)

	climate, err := NewBME280(bus, cfg.Climate, cfg.SeaLevelPressure)
	if err != nil {
		return fail(fmt.Errorf("bme280: %w", err))
	}
	opened = append(opened, climate)

	wind, err := NewAnemometer(bus, cfg.Wind)
	if err != nil {
		return fail(fmt.Errorf("anemometer: %w", err))
	}

	p := NewPort(uv, gas, climate, wind)
	p.bus = bus
	return p, nil
}
