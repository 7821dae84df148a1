package console

import (
	"context"
	"fmt"
	"time"

	"github.com/ericogr/weather-station/pkg/output"
	"github.com/ericogr/weather-station/pkg/telemetry"
)

type ConsoleDisplay struct{}

func NewConsole() output.Display { return &ConsoleDisplay{} }

func (c *ConsoleDisplay) Render(_ context.Context, f telemetry.Frame) error {
	_, err := fmt.Printf("%s uv=%.3f temp=%.2fC humidity=%.1f%% pressure=%.2fhPa altitude=%.1fm eco2=%dppm tvoc=%dppb wind=%.2fm/s\n",
		f.Timestamp.Format(time.RFC3339), f.UVIndex,
		f.Climate.Temperature, f.Climate.Humidity, f.Climate.Pressure, f.Climate.Altitude,
		f.Gas.ECO2, f.Gas.TVOC, f.WindSpeed)
	return err
}

func (c *ConsoleDisplay) Close() error { return nil }
