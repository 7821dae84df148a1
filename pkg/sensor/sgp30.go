package sensor

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/ericogr/weather-station/pkg/config"
)

const (
	sgpCmdIAQInit    = 0x2003
	sgpCmdMeasureIAQ = 0x2008

	sgpInitDelay    = 10 * time.Millisecond
	sgpMeasureDelay = 12 * time.Millisecond
)

// SGP30 reads eCO2 and TVOC from a Sensirion SGP30.
type SGP30 struct {
	dev   conn
	delay func(context.Context, time.Duration) error
}

func NewSGP30(bus i2c.Bus, cfg config.GasConfig) (*SGP30, error) {
	return newSGP30(&i2c.Dev{Addr: uint16(cfg.Address), Bus: bus}, sleepCtx)
}

func newSGP30(dev conn, delay func(context.Context, time.Duration) error) (*SGP30, error) {
	s := &SGP30{dev: dev, delay: delay}
	if err := s.command(sgpCmdIAQInit); err != nil {
		return nil, fmt.Errorf("iaq init: %w", err)
	}
	if err := delay(context.Background(), sgpInitDelay); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SGP30) Source() Source { return SourceGas }

func (s *SGP30) Read(ctx context.Context) (Reading, error) {
	if err := s.command(sgpCmdMeasureIAQ); err != nil {
		return nil, &Fault{Source: SourceGas, Err: fmt.Errorf("measure iaq: %w", err)}
	}
	if err := s.delay(ctx, sgpMeasureDelay); err != nil {
		return nil, err
	}
	buf := make([]byte, 6)
	if err := s.dev.Tx(nil, buf); err != nil {
		return nil, &Fault{Source: SourceGas, Err: fmt.Errorf("read iaq: %w", err)}
	}
	words, err := sgpWords(buf)
	if err != nil {
		return nil, &Fault{Source: SourceGas, Err: err}
	}
	return GasReading{ECO2: words[0], TVOC: words[1]}, nil
}

func (s *SGP30) Close() error { return nil }

func (s *SGP30) command(cmd uint16) error {
	return s.dev.Tx([]byte{byte(cmd >> 8), byte(cmd & 0xFF)}, nil)
}

// sgpWords splits a response into 16-bit words, each followed by its CRC.
func sgpWords(buf []byte) ([]uint16, error) {
	if len(buf)%3 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(buf))
	}
	out := make([]uint16, 0, len(buf)/3)
	for i := 0; i < len(buf); i += 3 {
		if crc8(buf[i:i+2]) != buf[i+2] {
			return nil, fmt.Errorf("%w: crc mismatch in word %d", ErrMalformed, i/3)
		}
		out = append(out, uint16(buf[i])<<8|uint16(buf[i+1]))
	}
	return out, nil
}
