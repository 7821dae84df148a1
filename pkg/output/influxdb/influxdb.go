// Package influxdb writes frames as points to an InfluxDB v2 bucket.
package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/ericogr/weather-station/pkg/config"
	"github.com/ericogr/weather-station/pkg/telemetry"
)

const (
	DefaultMeasurement = "weather"
	tagStation         = "station"
	tagBoot            = "boot"
)

type InfluxDBUploader struct {
	mu        sync.Mutex
	cfg       config.InfluxDBConfig
	timeout   time.Duration
	stationID string
	bootID    string
	client    influxdb2.Client
}

func NewInfluxDB(cfg config.InfluxDBConfig, stationID, bootID string, timeout time.Duration) (*InfluxDBUploader, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influxdb: url, org and bucket are required")
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}
	u := &InfluxDBUploader{cfg: cfg, timeout: timeout, stationID: stationID, bootID: bootID}
	u.client = u.newClient()
	return u, nil
}

func (u *InfluxDBUploader) newClient() influxdb2.Client {
	opts := influxdb2.DefaultOptions()
	if secs := uint(u.timeout / time.Second); secs > 0 {
		opts.SetHTTPRequestTimeout(secs)
	}
	return influxdb2.NewClientWithOptions(u.cfg.URL, u.cfg.Token, opts)
}

func (u *InfluxDBUploader) Upload(ctx context.Context, f telemetry.Frame) error {
	u.mu.Lock()
	client := u.client
	u.mu.Unlock()

	p := influxdb2.NewPoint(
		u.cfg.Measurement,
		map[string]string{tagStation: u.stationID, tagBoot: u.bootID},
		f.Fields(),
		f.Timestamp,
	)
	if err := client.WriteAPIBlocking(u.cfg.Org, u.cfg.Bucket).WritePoint(ctx, p); err != nil {
		return fmt.Errorf("error writing to InfluxDB: %w", err)
	}
	return nil
}

func (u *InfluxDBUploader) Reset(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.client.Close()
	u.client = u.newClient()
	return nil
}

func (u *InfluxDBUploader) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.client.Close()
	return nil
}
