package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/ericogr/weather-station/pkg/acquisition"
	"github.com/ericogr/weather-station/pkg/config"
	"github.com/ericogr/weather-station/pkg/logging"
	"github.com/ericogr/weather-station/pkg/output"
	"github.com/ericogr/weather-station/pkg/output/adafruitio"
	"github.com/ericogr/weather-station/pkg/output/console"
	"github.com/ericogr/weather-station/pkg/output/influxdb"
	"github.com/ericogr/weather-station/pkg/output/kafka"
	"github.com/ericogr/weather-station/pkg/output/mqtt"
	"github.com/ericogr/weather-station/pkg/output/panel"
	"github.com/ericogr/weather-station/pkg/sensor"
	"github.com/ericogr/weather-station/pkg/wireless"
)

var version = "dev"
var appName = "weather-station"

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	bootID := uuid.NewString()
	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"boot_id", bootID,
		"sensor_type", cfg.SensorType,
		"telemetry", cfg.Telemetry.Type,
		"period", cfg.Period().String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// sensors that fail to initialize are fatal; the loop never sees them
	port, err := sensor.NewPortFromConfig(cfg)
	if err != nil {
		slog.Error("sensor init failed", "err", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, port, bootID, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}

// stationPort is the opened sensor bus the loop reads from.
type stationPort interface {
	acquisition.Acquirer
	Close() error
}

// run owns port and closes it, along with every output it opens, before
// returning.
func run(ctx context.Context, cfg config.Config, port stationPort, bootID string, logger *slog.Logger) error {
	defer port.Close()

	display, err := initDisplays(cfg)
	if err != nil {
		return fmt.Errorf("display init: %w", err)
	}
	defer display.Close()

	uploader, err := initUploader(ctx, cfg, bootID, logger)
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer uploader.Close()

	session := wireless.NewSession(wireless.NewLink(cfg.Wireless), uploader)
	loop := acquisition.New(port, output.NewSink(display, uploader), session, cfg.Period(), cfg.Wind.WindCalibration,
		acquisition.WithLogger(logger),
		acquisition.WithSensorFaultReset(cfg.ResetOnSensorFault),
		acquisition.WithRetryDelay(cfg.RetryDelay()),
	)
	return loop.Run(ctx)
}

// initDisplays builds every configured display. No displays yields an empty
// MultiDisplay, which renders nothing.
func initDisplays(cfg config.Config) (output.MultiDisplay, error) {
	var displays output.MultiDisplay
	for _, d := range cfg.Displays {
		switch strings.ToLower(d.Type) {
		case config.DisplayConsole:
			displays = append(displays, console.NewConsole())
		case config.DisplayPanel:
			p, err := panel.NewPanel(d.Path, d.Width, d.Height)
			if err != nil {
				_ = displays.Close()
				return nil, fmt.Errorf("panel display: %w", err)
			}
			displays = append(displays, p)
		default:
			_ = displays.Close()
			return nil, fmt.Errorf("unknown display type %q", d.Type)
		}
	}
	return displays, nil
}

// initUploader builds the single telemetry backend selected by the config.
func initUploader(ctx context.Context, cfg config.Config, bootID string, logger *slog.Logger) (output.Uploader, error) {
	timeout := cfg.TelemetryTimeout()
	t := cfg.Telemetry
	switch t.Type {
	case config.TelemetryNone, "":
		return output.Discard{}, nil
	case config.TelemetryMQTT:
		if t.MQTT == nil {
			return nil, errors.New("mqtt telemetry selected without mqtt settings")
		}
		u, err := mqtt.NewMQTT(ctx, *t.MQTT, cfg.StationID, bootID, timeout, logger)
		if err != nil {
			return nil, err
		}
		return u, nil
	case config.TelemetryAdafruitIO:
		if t.AdafruitIO == nil {
			return nil, errors.New("adafruitio telemetry selected without adafruitio settings")
		}
		u, err := adafruitio.NewAdafruitIO(*t.AdafruitIO, timeout)
		if err != nil {
			return nil, err
		}
		return u, nil
	case config.TelemetryInfluxDB:
		if t.InfluxDB == nil {
			return nil, errors.New("influxdb telemetry selected without influxdb settings")
		}
		u, err := influxdb.NewInfluxDB(*t.InfluxDB, cfg.StationID, bootID, timeout)
		if err != nil {
			return nil, err
		}
		return u, nil
	case config.TelemetryKafka:
		if t.Kafka == nil {
			return nil, errors.New("kafka telemetry selected without kafka settings")
		}
		u, err := kafka.NewKafka(*t.Kafka, cfg.StationID, bootID, timeout)
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unknown telemetry type %q", t.Type)
	}
}
