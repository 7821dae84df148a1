package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ericogr/weather-station/pkg/convert"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SensorTypeReal       = "real"
	SensorTypeSimulation = "simulation"

	DisplayConsole = "console"
	DisplayPanel   = "panel"

	TelemetryNone       = "none"
	TelemetryMQTT       = "mqtt"
	TelemetryAdafruitIO = "adafruitio"
	TelemetryInfluxDB   = "influxdb"
	TelemetryKafka      = "kafka"
)

// WindSampleRates are the ADS1115 data rates in samples per second.
var WindSampleRates = []int{8, 16, 32, 64, 128, 250, 475, 860}

type UVConfig struct {
	Address           int `json:"address" yaml:"address"`
	IntegrationTimeMs int `json:"integration_time_ms" yaml:"integration_time_ms"`
}

type GasConfig struct {
	Address int `json:"address" yaml:"address"`
}

type ClimateConfig struct {
	Address int `json:"address" yaml:"address"`
}

type WindConfig struct {
	Address    int `json:"address" yaml:"address"`
	Channel    int `json:"channel" yaml:"channel"`
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`

	convert.WindCalibration `yaml:",inline"`
}

type DisplayConfig struct {
	Type   string `json:"type" yaml:"type"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Width  int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height int    `json:"height,omitempty" yaml:"height,omitempty"`
}

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty"`
}

type AdafruitIOConfig struct {
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Username string `json:"username" yaml:"username"`
	Key      string `json:"key" yaml:"key"`
	Group    string `json:"group" yaml:"group"`
}

type InfluxDBConfig struct {
	URL         string `json:"url" yaml:"url"`
	Token       string `json:"token" yaml:"token"`
	Org         string `json:"org" yaml:"org"`
	Bucket      string `json:"bucket" yaml:"bucket"`
	Measurement string `json:"measurement" yaml:"measurement"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type TelemetryConfig struct {
	Type       string            `json:"type" yaml:"type"`
	TimeoutMs  int               `json:"timeout_ms" yaml:"timeout_ms"`
	MQTT       *MQTTConfig       `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	AdafruitIO *AdafruitIOConfig `json:"adafruitio,omitempty" yaml:"adafruitio,omitempty"`
	InfluxDB   *InfluxDBConfig   `json:"influxdb,omitempty" yaml:"influxdb,omitempty"`
	Kafka      *KafkaConfig      `json:"kafka,omitempty" yaml:"kafka,omitempty"`
}

type WirelessConfig struct {
	Interface    string   `json:"interface" yaml:"interface"`
	SSID         string   `json:"ssid" yaml:"ssid"`
	Password     string   `json:"password" yaml:"password"`
	ResetCommand []string `json:"reset_command,omitempty" yaml:"reset_command,omitempty"`
}

type Config struct {
	AppEnv    string `json:"app_env" yaml:"app_env"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
	StationID string `json:"station_id" yaml:"station_id"`

	SensorType          string  `json:"sensor_type" yaml:"sensor_type"`
	SimulationFaultRate float64 `json:"simulation_fault_rate" yaml:"simulation_fault_rate"`
	I2CBus              string  `json:"i2c_bus" yaml:"i2c_bus"`
	SeaLevelPressure    float64 `json:"sea_level_pressure" yaml:"sea_level_pressure"`

	UV      UVConfig      `json:"uv" yaml:"uv"`
	Gas     GasConfig     `json:"gas" yaml:"gas"`
	Climate ClimateConfig `json:"climate" yaml:"climate"`
	Wind    WindConfig    `json:"wind" yaml:"wind"`

	PeriodMs           int  `json:"period_ms" yaml:"period_ms"`
	RetryDelayMs       int  `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	ResetOnSensorFault bool `json:"reset_on_sensor_fault" yaml:"reset_on_sensor_fault"`

	Displays  []DisplayConfig `json:"displays" yaml:"displays"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Wireless  WirelessConfig  `json:"wireless" yaml:"wireless"`
}

func DefaultConfig() Config {
	return Config{
		AppEnv:           "dev",
		LogLevel:         "info",
		StationID:        "pyportal",
		SensorType:       SensorTypeReal,
		I2CBus:           "1",
		SeaLevelPressure: 1013.25,
		UV:               UVConfig{Address: 0x10, IntegrationTimeMs: 100},
		Gas:              GasConfig{Address: 0x58},
		Climate:          ClimateConfig{Address: 0x77},
		Wind: WindConfig{
			Address:         0x48,
			Channel:         0,
			SampleRate:      128,
			WindCalibration: convert.DefaultWindCalibration(),
		},
		PeriodMs:           15000,
		ResetOnSensorFault: true,
		Displays:           []DisplayConfig{{Type: DisplayConsole}},
		Telemetry:          TelemetryConfig{Type: TelemetryNone, TimeoutMs: 10000},
		Wireless:           WirelessConfig{Interface: "wlan0"},
	}
}

// Period is the cadence between successful cycles.
func (c Config) Period() time.Duration {
	return time.Duration(c.PeriodMs) * time.Millisecond
}

func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c Config) TelemetryTimeout() time.Duration {
	return time.Duration(c.Telemetry.TimeoutMs) * time.Millisecond
}

// Level parses LogLevel into a slog level.
func (c Config) Level() (slog.Level, error) {
	return parseLogLevel(c.LogLevel)
}

// LoadFromFlags loads configuration from the process command line.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load reads an optional JSON or YAML config file and applies the flags in
// args on top of it. Credentials still empty afterwards are taken from the
// secrets file (.env) or the environment.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("weather-station", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	envPath := fs.String("env-file", ".env", "Path to the secrets file")
	flagAppEnv := fs.String("app-env", "", "Environment: dev|prod")
	flagLogLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")
	flagStation := fs.String("station-id", "", "Station identifier sent with telemetry")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagFaultRate := fs.Float64("simulation-fault-rate", math.NaN(), "Probability of a simulated sensor fault per read")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagPeriod := fs.Int("period-ms", -1, "Cycle period in ms")
	flagRetryDelay := fs.Int("retry-delay-ms", -1, "Pause before retrying a failed cycle in ms")
	flagSeaLevel := fs.Float64("sea-level-pressure", math.NaN(), "Sea level pressure reference (hPa)")
	flagVoltsMin := fs.Float64("wind-volts-min", math.NaN(), "Anemometer voltage at minimum speed")
	flagVoltsMax := fs.Float64("wind-volts-max", math.NaN(), "Anemometer voltage at maximum speed")
	flagSpeedMin := fs.Float64("wind-speed-min", math.NaN(), "Minimum wind speed (m/s)")
	flagSpeedMax := fs.Float64("wind-speed-max", math.NaN(), "Maximum wind speed (m/s)")
	flagWindAddr := fs.String("wind-address", "", "ADS1115 I2C address (decimal or 0x hex)")
	flagDisplays := fs.String("displays", "", "Comma-separated displays (console,panel)")
	flagTelemetry := fs.String("telemetry", "", "Telemetry backend: none|mqtt|adafruitio|influxdb|kafka")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagSensorReset := fs.String("reset-on-sensor-fault", "", "Reset the wireless link on sensor faults (true|false)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := loadFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if *flagAppEnv != "" {
		cfg.AppEnv = strings.TrimSpace(*flagAppEnv)
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	if *flagStation != "" {
		cfg.StationID = *flagStation
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if !math.IsNaN(*flagFaultRate) {
		cfg.SimulationFaultRate = *flagFaultRate
	}
	if *flagI2CBus != "" {
		cfg.I2CBus = *flagI2CBus
	}
	if *flagPeriod != -1 {
		cfg.PeriodMs = *flagPeriod
	}
	if *flagRetryDelay != -1 {
		cfg.RetryDelayMs = *flagRetryDelay
	}
	if !math.IsNaN(*flagSeaLevel) {
		cfg.SeaLevelPressure = *flagSeaLevel
	}
	if !math.IsNaN(*flagVoltsMin) {
		cfg.Wind.VoltsMin = *flagVoltsMin
	}
	if !math.IsNaN(*flagVoltsMax) {
		cfg.Wind.VoltsMax = *flagVoltsMax
	}
	if !math.IsNaN(*flagSpeedMin) {
		cfg.Wind.SpeedMin = *flagSpeedMin
	}
	if !math.IsNaN(*flagSpeedMax) {
		cfg.Wind.SpeedMax = *flagSpeedMax
	}
	if *flagWindAddr != "" {
		v, err := parseIntOrHex(*flagWindAddr)
		if err != nil {
			return cfg, fmt.Errorf("wind-address: %w", err)
		}
		cfg.Wind.Address = v
	}
	if *flagDisplays != "" {
		parts := parseCSV(*flagDisplays)
		displays := make([]DisplayConfig, 0, len(parts))
		for _, p := range parts {
			displays = append(displays, DisplayConfig{Type: p})
		}
		cfg.Displays = displays
	}
	if *flagTelemetry != "" {
		cfg.Telemetry.Type = strings.ToLower(*flagTelemetry)
	}
	if *flagMQTTServer != "" || *flagMQTTTopic != "" {
		if cfg.Telemetry.MQTT == nil {
			cfg.Telemetry.MQTT = &MQTTConfig{}
		}
		if *flagMQTTServer != "" {
			cfg.Telemetry.MQTT.Server = *flagMQTTServer
		}
		if *flagMQTTTopic != "" {
			cfg.Telemetry.MQTT.StateTopic = *flagMQTTTopic
		}
	}
	if *flagSensorReset != "" {
		v, err := strconv.ParseBool(*flagSensorReset)
		if err != nil {
			return cfg, fmt.Errorf("reset-on-sensor-fault: %w", err)
		}
		cfg.ResetOnSensorFault = v
	}

	// secrets only fill fields still empty, so flags and the file win
	explicitEnv := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "env-file" {
			explicitEnv = true
		}
	})
	if err := applySecrets(&cfg, *envPath, explicitEnv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the values the loop and drivers depend on.
func (c Config) Validate() error {
	switch c.AppEnv {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid app_env %q (allowed: dev, prod)", c.AppEnv)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.PeriodMs <= 0 {
		return errors.New("period-ms must be > 0")
	}
	if c.RetryDelayMs < 0 {
		return errors.New("retry-delay-ms must be >= 0")
	}
	switch c.SensorType {
	case SensorTypeReal, SensorTypeSimulation:
	default:
		return fmt.Errorf("invalid sensor_type %q (allowed: real, simulation)", c.SensorType)
	}
	if c.SimulationFaultRate < 0 || c.SimulationFaultRate > 1 {
		return fmt.Errorf("simulation_fault_rate must be within 0..1, got %v", c.SimulationFaultRate)
	}
	if c.SeaLevelPressure <= 0 {
		return errors.New("sea-level-pressure must be > 0")
	}
	if c.Wind.VoltsMax <= c.Wind.VoltsMin {
		return fmt.Errorf("wind volts range is empty: %v..%v", c.Wind.VoltsMin, c.Wind.VoltsMax)
	}
	if !slices.Contains(WindSampleRates, c.Wind.SampleRate) {
		return fmt.Errorf("unsupported wind sample_rate %d (allowed: %v)", c.Wind.SampleRate, WindSampleRates)
	}
	if c.Wind.Channel < 0 || c.Wind.Channel > 3 {
		return fmt.Errorf("invalid wind channel %d", c.Wind.Channel)
	}
	for _, d := range c.Displays {
		switch strings.ToLower(d.Type) {
		case DisplayConsole, DisplayPanel:
		default:
			return fmt.Errorf("unknown display type %q", d.Type)
		}
	}
	if c.Telemetry.TimeoutMs <= 0 {
		return errors.New("telemetry timeout_ms must be > 0")
	}
	switch c.Telemetry.Type {
	case TelemetryNone, TelemetryMQTT, TelemetryAdafruitIO, TelemetryInfluxDB, TelemetryKafka:
	default:
		return fmt.Errorf("unknown telemetry type %q", c.Telemetry.Type)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applySecrets fills credentials from the secrets file, falling back to the
// process environment. A missing default file is not an error.
func applySecrets(cfg *Config, path string, required bool) error {
	secrets, err := godotenv.Read(path)
	if err != nil {
		if required || !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read secrets: %w", err)
		}
		secrets = map[string]string{}
	}
	get := func(key string) string {
		if v, ok := secrets[key]; ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(os.Getenv(key))
	}

	setIfEmpty(&cfg.Wireless.SSID, get("WIFI_SSID"))
	setIfEmpty(&cfg.Wireless.Password, get("WIFI_PASSWORD"))

	switch cfg.Telemetry.Type {
	case TelemetryAdafruitIO:
		if cfg.Telemetry.AdafruitIO == nil {
			cfg.Telemetry.AdafruitIO = &AdafruitIOConfig{}
		}
		setIfEmpty(&cfg.Telemetry.AdafruitIO.Username, get("AIO_USERNAME"))
		setIfEmpty(&cfg.Telemetry.AdafruitIO.Key, get("AIO_KEY"))
	case TelemetryMQTT:
		if cfg.Telemetry.MQTT == nil {
			cfg.Telemetry.MQTT = &MQTTConfig{}
		}
		setIfEmpty(&cfg.Telemetry.MQTT.Username, get("MQTT_USERNAME"))
		setIfEmpty(&cfg.Telemetry.MQTT.Password, get("MQTT_PASSWORD"))
	case TelemetryInfluxDB:
		if cfg.Telemetry.InfluxDB == nil {
			cfg.Telemetry.InfluxDB = &InfluxDBConfig{}
		}
		setIfEmpty(&cfg.Telemetry.InfluxDB.Token, get("INFLUXDB_TOKEN"))
	}
	return nil
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (allowed: debug, info, warn, error)", s)
	}
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
