package influxdb

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ericogr/weather-station/pkg/config"
	"github.com/ericogr/weather-station/pkg/telemetry"
)

func TestUploadWritesPoint(t *testing.T) {
	var (
		body   string
		query  string
		header string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		query = r.URL.RawQuery
		header = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	u, err := NewInfluxDB(config.InfluxDBConfig{URL: srv.URL, Token: "tok", Org: "home", Bucket: "station"}, "roof", "b1", 2*time.Second)
	if err != nil {
		t.Fatalf("NewInfluxDB: %v", err)
	}
	defer u.Close()

	f := telemetry.Frame{UVIndex: 1.5, Timestamp: time.Unix(1700000000, 0)}
	f.Gas.ECO2 = 410
	if err := u.Upload(context.Background(), f); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	for _, want := range []string{"weather,", "boot=b1", "station=roof", "uv_index=1.5", "eco2=410i", "1700000000000000000"} {
		if !strings.Contains(body, want) {
			t.Fatalf("line protocol %q missing %q", body, want)
		}
	}
	if !strings.Contains(query, "bucket=station") || !strings.Contains(query, "org=home") {
		t.Fatalf("query: %s", query)
	}
	if header != "Token tok" {
		t.Fatalf("authorization: %q", header)
	}
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"internal error","message":"down"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	u, _ := NewInfluxDB(config.InfluxDBConfig{URL: srv.URL, Org: "o", Bucket: "b"}, "s", "b", time.Second)
	defer u.Close()
	if err := u.Upload(context.Background(), telemetry.Frame{Timestamp: time.Now()}); err == nil {
		t.Fatalf("expected error")
	}
	if err := u.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
}

func TestRequiresBucket(t *testing.T) {
	if _, err := NewInfluxDB(config.InfluxDBConfig{URL: "http://x", Org: "o"}, "s", "b", time.Second); err == nil {
		t.Fatalf("expected error")
	}
}
