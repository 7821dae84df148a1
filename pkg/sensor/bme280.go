package sensor

import (
	"context"
	"fmt"
	"math"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"

	"github.com/ericogr/weather-station/pkg/config"
)

type envSensor interface {
	Sense(e *physic.Env) error
	Halt() error
}

// BME280 reads temperature, humidity and pressure from a Bosch BME280 and
// derives altitude from a sea level pressure reference.
type BME280 struct {
	dev      envSensor
	seaLevel float64
}

func NewBME280(bus i2c.Bus, cfg config.ClimateConfig, seaLevelHPa float64) (*BME280, error) {
	dev, err := bmxx80.NewI2C(bus, uint16(cfg.Address), &bmxx80.DefaultOpts)
	if err != nil {
		return nil, err
	}
	return &BME280{dev: dev, seaLevel: seaLevelHPa}, nil
}

func (b *BME280) Source() Source { return SourceClimate }

func (b *BME280) Read(_ context.Context) (Reading, error) {
	var env physic.Env
	if err := b.dev.Sense(&env); err != nil {
		return nil, &Fault{Source: SourceClimate, Err: fmt.Errorf("sense: %w", err)}
	}
	humidity := float64(env.Humidity) / float64(physic.PercentRH)
	if humidity < 0 || humidity > 100 {
		return nil, &Fault{Source: SourceClimate, Err: fmt.Errorf("%w: humidity %.2f%%", ErrInvalidRange, humidity)}
	}
	pressure := float64(env.Pressure) / float64(100*physic.Pascal)
	if pressure <= 0 {
		return nil, &Fault{Source: SourceClimate, Err: fmt.Errorf("%w: pressure %.2fhPa", ErrInvalidRange, pressure)}
	}
	return ClimateReading{
		Temperature: env.Temperature.Celsius(),
		Humidity:    humidity,
		Pressure:    pressure,
		Altitude:    altitude(pressure, b.seaLevel),
	}, nil
}

func (b *BME280) Close() error {
	return b.dev.Halt()
}

// altitude is the international barometric formula, in meters.
func altitude(pressureHPa, seaLevelHPa float64) float64 {
	return 44330 * (1 - math.Pow(pressureHPa/seaLevelHPa, 0.1903))
}
