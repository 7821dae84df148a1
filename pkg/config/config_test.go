package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// noSecrets moves into an empty directory and clears the secret variables so
// the default .env lookup finds nothing.
func noSecrets(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range []string{"WIFI_SSID", "WIFI_PASSWORD", "AIO_USERNAME", "AIO_KEY", "MQTT_USERNAME", "MQTT_PASSWORD", "INFLUXDB_TOKEN"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	noSecrets(t)
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Period().Seconds() != 15 {
		t.Fatalf("period: got %v want 15s", cfg.Period())
	}
	if cfg.SeaLevelPressure != 1013.25 {
		t.Fatalf("sea level pressure: got %v", cfg.SeaLevelPressure)
	}
	if cfg.Wind.VoltsMin != 0.4 || cfg.Wind.VoltsMax != 2.0 || cfg.Wind.SpeedMin != 0 || cfg.Wind.SpeedMax != 32.4 {
		t.Fatalf("wind calibration: %+v", cfg.Wind.WindCalibration)
	}
	if !cfg.ResetOnSensorFault {
		t.Fatalf("reset_on_sensor_fault should default to true")
	}
	if cfg.Telemetry.Type != TelemetryNone {
		t.Fatalf("telemetry: got %q", cfg.Telemetry.Type)
	}
}

func TestUnmarshalConfigJSON(t *testing.T) {
	js := `{
        "i2c_bus": "2",
        "period_ms": 5000,
        "sea_level_pressure": 1020.5,
        "sensor_type": "simulation",
        "wind": {"address": 73, "channel": 1, "sample_rate": 250, "volts_min": 0.5, "volts_max": 2.5, "speed_min": 0, "speed_max": 30},
        "displays": [{"type": "console"}, {"type": "panel", "path": "/tmp/panel.png"}],
        "telemetry": {"type": "mqtt", "mqtt": {"server": "tcp://broker:1883", "state_topic": "weather/state"}}
    }`

	cfg := DefaultConfig()
	if err := json.Unmarshal([]byte(js), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.I2CBus != "2" || cfg.PeriodMs != 5000 || cfg.SeaLevelPressure != 1020.5 {
		t.Fatalf("top level: %+v", cfg)
	}
	if cfg.Wind.Address != 73 || cfg.Wind.Channel != 1 || cfg.Wind.SampleRate != 250 {
		t.Fatalf("wind: %+v", cfg.Wind)
	}
	if cfg.Wind.VoltsMin != 0.5 || cfg.Wind.VoltsMax != 2.5 || cfg.Wind.SpeedMax != 30 {
		t.Fatalf("wind calibration: %+v", cfg.Wind.WindCalibration)
	}
	if len(cfg.Displays) != 2 || cfg.Displays[1].Path != "/tmp/panel.png" {
		t.Fatalf("displays: %+v", cfg.Displays)
	}
	if cfg.Telemetry.MQTT == nil || cfg.Telemetry.MQTT.StateTopic != "weather/state" {
		t.Fatalf("telemetry: %+v", cfg.Telemetry)
	}
	// untouched defaults survive
	if cfg.UV.Address != 0x10 || !cfg.ResetOnSensorFault {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "station.yaml", `
period_ms: 2000
sea_level_pressure: 1009
reset_on_sensor_fault: false
wind:
  volts_min: 0.3
  volts_max: 1.9
telemetry:
  type: kafka
  kafka:
    brokers: ["kafka:9092"]
    topic: weather
`)
	noSecrets(t)
	cfg, err := Load([]string{"-config", path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PeriodMs != 2000 || cfg.SeaLevelPressure != 1009 || cfg.ResetOnSensorFault {
		t.Fatalf("yaml values: %+v", cfg)
	}
	if cfg.Wind.VoltsMin != 0.3 || cfg.Wind.VoltsMax != 1.9 || cfg.Wind.SpeedMax != 32.4 {
		t.Fatalf("yaml wind: %+v", cfg.Wind)
	}
	if cfg.Telemetry.Kafka == nil || !reflect.DeepEqual(cfg.Telemetry.Kafka.Brokers, []string{"kafka:9092"}) {
		t.Fatalf("yaml kafka: %+v", cfg.Telemetry.Kafka)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "station.json", `{"period_ms": 2000, "sea_level_pressure": 1009}`)
	noSecrets(t)
	cfg, err := Load([]string{"-config", path,
		"-period-ms", "30000",
		"-sea-level-pressure", "1000",
		"-wind-volts-max", "2.2",
		"-wind-address", "0x49",
		"-displays", "console, panel",
		"-reset-on-sensor-fault", "false",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PeriodMs != 30000 || cfg.SeaLevelPressure != 1000 || cfg.Wind.VoltsMax != 2.2 {
		t.Fatalf("overrides: %+v", cfg)
	}
	if cfg.Wind.Address != 0x49 {
		t.Fatalf("wind address: got %#x", cfg.Wind.Address)
	}
	if len(cfg.Displays) != 2 || cfg.Displays[1].Type != "panel" {
		t.Fatalf("displays: %+v", cfg.Displays)
	}
	if cfg.ResetOnSensorFault {
		t.Fatalf("reset-on-sensor-fault flag ignored")
	}
}

func TestSecretsFile(t *testing.T) {
	noSecrets(t)
	env := writeFile(t, "secrets.env", "WIFI_SSID=station-net\nWIFI_PASSWORD=hunter2\nAIO_USERNAME=alice\nAIO_KEY=aio_123\n")
	cfg, err := Load([]string{"-env-file", env, "-telemetry", "adafruitio"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Wireless.SSID != "station-net" || cfg.Wireless.Password != "hunter2" {
		t.Fatalf("wireless secrets: %+v", cfg.Wireless)
	}
	if cfg.Telemetry.AdafruitIO == nil || cfg.Telemetry.AdafruitIO.Username != "alice" || cfg.Telemetry.AdafruitIO.Key != "aio_123" {
		t.Fatalf("adafruit io secrets: %+v", cfg.Telemetry.AdafruitIO)
	}
}

func TestMissingExplicitSecretsFile(t *testing.T) {
	noSecrets(t)
	if _, err := Load([]string{"-env-file", filepath.Join(t.TempDir(), "missing.env")}); err == nil {
		t.Fatalf("expected error for missing explicit secrets file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero period", func(c *Config) { c.PeriodMs = 0 }},
		{"negative retry delay", func(c *Config) { c.RetryDelayMs = -1 }},
		{"bad sensor type", func(c *Config) { c.SensorType = "mock" }},
		{"empty wind range", func(c *Config) { c.Wind.VoltsMax = c.Wind.VoltsMin }},
		{"bad wind channel", func(c *Config) { c.Wind.Channel = 4 }},
		{"unsupported wind sample rate", func(c *Config) { c.Wind.SampleRate = 1000 }},
		{"zero wind sample rate", func(c *Config) { c.Wind.SampleRate = 0 }},
		{"zero telemetry timeout", func(c *Config) { c.Telemetry.TimeoutMs = 0 }},
		{"negative telemetry timeout", func(c *Config) { c.Telemetry.TimeoutMs = -5 }},
		{"bad display", func(c *Config) { c.Displays = []DisplayConfig{{Type: "lcd"}} }},
		{"bad telemetry", func(c *Config) { c.Telemetry.Type = "http" }},
		{"bad app env", func(c *Config) { c.AppEnv = "staging" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"fault rate above one", func(c *Config) { c.SimulationFaultRate = 1.5 }},
		{"non positive sea level", func(c *Config) { c.SeaLevelPressure = 0 }},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{" WARN ", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"nope", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseLogLevel(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if got != tt.want {
			t.Fatalf("parseLogLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	if v, err := parseIntOrHex("0x48"); err != nil || v != 72 {
		t.Fatalf("parseIntOrHex(0x48) = %d, %v", v, err)
	}
	if v, err := parseIntOrHex("119"); err != nil || v != 119 {
		t.Fatalf("parseIntOrHex(119) = %d, %v", v, err)
	}
	if _, err := parseIntOrHex("zz"); err == nil {
		t.Fatalf("parseIntOrHex(zz) should fail")
	}
	if got := parseCSV(" a, ,b ,"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("parseCSV = %v", got)
	}
}
