package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ericogr/weather-station/pkg/config"
)

func TestProdLoggerWritesJSON(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AppEnv = "prod"
	cfg.StationID = "roof"

	var buf bytes.Buffer
	logger := newWithWriter(&buf, cfg, "1.2.3", "weather-station")
	logger.Info("cycle complete", "cycle", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "cycle complete" || entry["version"] != "1.2.3" || entry["station"] != "roof" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestLevelIsApplied(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AppEnv = "prod"
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger := newWithWriter(&buf, cfg, "dev", "weather-station")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filter not applied: %q", out)
	}
}

func TestDevLoggerUsesText(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, config.DefaultConfig(), "dev", "weather-station")
	logger.Info("hello")
	if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("unexpected dev output: %q", buf.String())
	}
}
