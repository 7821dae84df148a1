package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ericogr/weather-station/pkg/config"
	"github.com/ericogr/weather-station/pkg/logging"
	"github.com/ericogr/weather-station/pkg/telemetry"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "weather-station"
	DefaultStateTopic = "weather/%s/state"
	DefaultTimeout    = 10 * time.Second
	disconnectQuiesce = 250
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	stateClassMeasurement  = "measurement"
	valueTemplateFmt       = "{{ value_json.%s }}"
)

var errTimeout = errors.New("mqtt: operation timed out")

// Home Assistant device classes for the fields that have one.
var deviceClasses = map[string]string{
	telemetry.FieldTemperature: "temperature",
	telemetry.FieldHumidity:    "humidity",
	telemetry.FieldPressure:    "pressure",
	telemetry.FieldECO2:        "carbon_dioxide",
	telemetry.FieldTVOC:        "volatile_organic_compounds_parts",
	telemetry.FieldWindSpeed:   "wind_speed",
}

type clientFactory func(*mqtt.ClientOptions) mqtt.Client

type MQTTUploader struct {
	mu        sync.Mutex
	cfg       config.MQTTConfig
	opts      *mqtt.ClientOptions
	newClient clientFactory
	client    mqtt.Client
	stationID string
	bootID    string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewMQTT creates the uploader and tries a first connection. A broker that is
// unreachable at startup is not an error; the next Reset connects again.
func NewMQTT(ctx context.Context, cfg config.MQTTConfig, stationID, bootID string, timeout time.Duration, logger *slog.Logger) (*MQTTUploader, error) {
	return newMQTT(ctx, cfg, stationID, bootID, timeout, logger, mqtt.NewClient)
}

func newMQTT(ctx context.Context, cfg config.MQTTConfig, stationID, bootID string, timeout time.Duration, logger *slog.Logger, factory clientFactory) (*MQTTUploader, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	if strings.Contains(cfg.StateTopic, "%s") {
		cfg.StateTopic = fmt.Sprintf(cfg.StateTopic, stationID)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	// reconnection is driven by Reset
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(timeout)

	m := &MQTTUploader{
		cfg:       cfg,
		opts:      opts,
		newClient: factory,
		stationID: stationID,
		bootID:    bootID,
		timeout:   timeout,
		logger:    logger,
	}
	if err := m.connect(ctx); err != nil {
		logger.Warn("mqtt connect failed, will retry on reset", "server", cfg.Server, "error", err)
	}
	return m, nil
}

func (m *MQTTUploader) Upload(ctx context.Context, f telemetry.Frame) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return errors.New("mqtt client not connected")
	}

	b, err := json.Marshal(statePayload(m.stationID, m.bootID, f))
	if err != nil {
		return err
	}
	if err := m.wait(ctx, client.Publish(m.cfg.StateTopic, 0, false, b)); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// Reset drops the current session and opens a new one.
func (m *MQTTUploader) Reset(ctx context.Context) error {
	m.mu.Lock()
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesce)
		m.client = nil
	}
	m.mu.Unlock()
	return m.connect(ctx)
}

func (m *MQTTUploader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesce)
		m.client = nil
	}
	return nil
}

func (m *MQTTUploader) connect(ctx context.Context) error {
	client := m.newClient(m.opts)
	if err := m.wait(ctx, client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	// Publish Home Assistant discovery payload(s) if requested
	if m.cfg.DiscoveryTopic != "" {
		for topic, payload := range m.discoveryPayloads() {
			if err := m.publishJSON(ctx, client, topic, true, payload); err != nil {
				m.logger.Warn("mqtt discovery publish error", "topic", topic, "error", err)
			}
		}
	}
	return nil
}

// discoveryPayloads returns one retained entry per field when the discovery
// topic contains a %s formatter, or a single entry for the whole state.
func (m *MQTTUploader) discoveryPayloads() map[string]map[string]interface{} {
	out := map[string]map[string]interface{}{}
	if !strings.Contains(m.cfg.DiscoveryTopic, "%s") {
		payload := baseDiscoveryPayload(discoveryName(m.cfg, m.stationID, ""), m.cfg.StateTopic, discoveryUniqueID(m.cfg, ""))
		payload[keyValueTemplate] = fmt.Sprintf(valueTemplateFmt, telemetry.FieldTemperature)
		payload[keyUnitOfMeasurement] = telemetry.FieldUnits[telemetry.FieldTemperature]
		payload[keyDeviceClass] = deviceClasses[telemetry.FieldTemperature]
		out[m.cfg.DiscoveryTopic] = payload
		return out
	}
	for _, field := range fieldNames() {
		topic := fmt.Sprintf(m.cfg.DiscoveryTopic, field)
		payload := baseDiscoveryPayload(discoveryName(m.cfg, m.stationID, field), m.cfg.StateTopic, discoveryUniqueID(m.cfg, field))
		payload[keyValueTemplate] = fmt.Sprintf(valueTemplateFmt, field)
		payload[keyUnitOfMeasurement] = telemetry.FieldUnits[field]
		if dc, ok := deviceClasses[field]; ok {
			payload[keyDeviceClass] = dc
		}
		out[topic] = payload
	}
	return out
}

func (m *MQTTUploader) publishJSON(ctx context.Context, client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.wait(ctx, client.Publish(topic, 0, retained, b))
}

func (m *MQTTUploader) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// statePayload flattens the frame so each field is reachable from a value template.
func statePayload(stationID, bootID string, f telemetry.Frame) map[string]interface{} {
	payload := f.Fields()
	payload["station_id"] = stationID
	payload["boot_id"] = bootID
	payload["timestamp"] = f.Timestamp.UTC().Format(time.RFC3339)
	return payload
}

func fieldNames() []string {
	names := make([]string, 0, len(telemetry.FieldUnits))
	for k := range telemetry.FieldUnits {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// helper: build a human-friendly discovery name; if field != "" append it
func discoveryName(cfg config.MQTTConfig, stationID, field string) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("Weather %s", stationID)
	}
	if field != "" {
		name = fmt.Sprintf("%s %s", name, strings.ReplaceAll(field, "_", " "))
	}
	return name
}

// helper: build a unique id for discovery; if field != "" append it
func discoveryUniqueID(cfg config.MQTTConfig, field string) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid != "" && field != "" {
		uid = fmt.Sprintf("%s_%s", uid, field)
	}
	return uid
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyStateClass:          stateClassMeasurement,
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}
