package sensor

import (
	"context"
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/ericogr/weather-station/pkg/config"
	"github.com/ericogr/weather-station/pkg/convert"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01
)

// Anemometer samples the wind sensor's analog output through an ADS1115.
type Anemometer struct {
	dev        conn
	channel    int
	sampleRate int
	pgaFS      float64
	delay      func(context.Context, time.Duration) error
}

func NewAnemometer(bus i2c.Bus, cfg config.WindConfig) (*Anemometer, error) {
	a := &Anemometer{
		dev:        &i2c.Dev{Addr: uint16(cfg.Address), Bus: bus},
		channel:    cfg.Channel,
		sampleRate: cfg.SampleRate,
		pgaFS:      4.096,
		delay:      sleepCtx,
	}
	if _, _, err := a.configForChannel(a.channel, a.sampleRate); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Anemometer) Source() Source { return SourceWind }

func (a *Anemometer) Read(ctx context.Context) (Reading, error) {
	msb, lsb, err := a.configForChannel(a.channel, a.sampleRate)
	if err != nil {
		return nil, &Fault{Source: SourceWind, Err: err}
	}
	// write config
	if err := a.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return nil, &Fault{Source: SourceWind, Err: fmt.Errorf("write config: %w", err)}
	}
	// wait for conversion
	delayMs := int(1000.0/float64(a.sampleRate)) + 2
	if err := a.delay(ctx, time.Duration(delayMs)*time.Millisecond); err != nil {
		return nil, err
	}
	readBuf := make([]byte, 2)
	if err := a.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return nil, &Fault{Source: SourceWind, Err: fmt.Errorf("read conv: %w", err)}
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	return a.toCount(raw), nil
}

func (a *Anemometer) Close() error { return nil }

// toCount rescales a signed conversion (±pgaFS) into a count of the 3.3V
// analog reference, saturating at both ends.
func (a *Anemometer) toCount(raw int16) WindRaw {
	volts := float64(raw) * a.pgaFS / 32768.0
	count := math.Round(volts / convert.ADCReferenceVolts * convert.ADCFullScale)
	switch {
	case count <= 0:
		return 0
	case count >= convert.ADCFullScale:
		return convert.ADCFullScale
	}
	return WindRaw(count)
}

func (a *Anemometer) configForChannel(channel, sampleRate int) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	// PGA: use ±4.096V -> bits 001
	pga := byte(0x1)
	// data rate bits
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		return 0, 0, fmt.Errorf("unsupported sample rate %d", sampleRate)
	}
	var reg uint16 = 0x8000 // OS = 1 (start single conversion)
	reg |= uint16(mux) << 12
	reg |= uint16(pga) << 9
	reg |= 1 << 8 // single-shot mode
	reg |= uint16(dr) << 5
	// comparator default: disabled (bits 1:0 = 11)
	reg |= 0x3
	return byte(reg >> 8), byte(reg & 0xFF), nil
}
