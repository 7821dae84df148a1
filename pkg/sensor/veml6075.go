package sensor

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c"

	"github.com/ericogr/weather-station/pkg/config"
)

const (
	vemlRegConf  = 0x00
	vemlRegUVA   = 0x07
	vemlRegUVB   = 0x09
	vemlRegComp1 = 0x0A
	vemlRegComp2 = 0x0B
	vemlRegID    = 0x0C
	vemlDeviceID = 0x26

	// coefficients from the Vishay VEML6075 application note
	vemlA       = 2.22
	vemlB       = 1.33
	vemlC       = 2.95
	vemlD       = 1.74
	vemlUVAResp = 0.001461
	vemlUVBResp = 0.002591
)

// VEML6075 reads the UV index from a Vishay VEML6075.
type VEML6075 struct {
	dev conn
}

func NewVEML6075(bus i2c.Bus, cfg config.UVConfig) (*VEML6075, error) {
	return newVEML6075(&i2c.Dev{Addr: uint16(cfg.Address), Bus: bus}, cfg.IntegrationTimeMs)
}

func newVEML6075(dev conn, integrationMs int) (*VEML6075, error) {
	it, err := vemlIntegrationBits(integrationMs)
	if err != nil {
		return nil, err
	}
	v := &VEML6075{dev: dev}
	id, err := v.readWord(vemlRegID)
	if err != nil {
		return nil, fmt.Errorf("read id: %w", err)
	}
	if id&0xFF != vemlDeviceID {
		return nil, fmt.Errorf("unexpected device id 0x%02X", id&0xFF)
	}
	// SD=0 powers the chip up in continuous mode
	if err := v.writeWord(vemlRegConf, uint16(it)<<4); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	return v, nil
}

func (v *VEML6075) Source() Source { return SourceUV }

func (v *VEML6075) Read(ctx context.Context) (Reading, error) {
	regs := []byte{vemlRegUVA, vemlRegUVB, vemlRegComp1, vemlRegComp2}
	var vals [4]float64
	for i, reg := range regs {
		w, err := v.readWord(reg)
		if err != nil {
			return nil, &Fault{Source: SourceUV, Err: fmt.Errorf("read 0x%02X: %w", reg, err)}
		}
		if i < 2 && w == 0xFFFF {
			return nil, &Fault{Source: SourceUV, Err: fmt.Errorf("%w: channel 0x%02X saturated", ErrInvalidRange, reg)}
		}
		vals[i] = float64(w)
	}
	uva, uvb, comp1, comp2 := vals[0], vals[1], vals[2], vals[3]
	uvaCalc := uva - vemlA*comp1 - vemlB*comp2
	uvbCalc := uvb - vemlC*comp1 - vemlD*comp2
	return UVReading{Index: (uvaCalc*vemlUVAResp + uvbCalc*vemlUVBResp) / 2}, nil
}

func (v *VEML6075) Close() error {
	// SD=1 shuts the chip down
	return v.writeWord(vemlRegConf, 0x01)
}

func (v *VEML6075) readWord(reg byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := v.dev.Tx([]byte{reg}, buf); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

func (v *VEML6075) writeWord(reg byte, val uint16) error {
	return v.dev.Tx([]byte{reg, byte(val & 0xFF), byte(val >> 8)}, nil)
}

func vemlIntegrationBits(ms int) (byte, error) {
	switch ms {
	case 50:
		return 0x0, nil
	case 0, 100:
		return 0x1, nil
	case 200:
		return 0x2, nil
	case 400:
		return 0x3, nil
	case 800:
		return 0x4, nil
	default:
		return 0, fmt.Errorf("invalid integration time %dms", ms)
	}
}
