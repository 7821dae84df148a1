// Package adafruitio uploads frames to an Adafruit IO feed group.
package adafruitio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ericogr/weather-station/pkg/config"
	"github.com/ericogr/weather-station/pkg/telemetry"
)

const (
	DefaultBaseURL = "https://io.adafruit.com"
	DefaultGroup   = "weather"
	headerKey      = "X-AIO-Key"
)

type feedValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

type groupData struct {
	Feeds     []feedValue `json:"feeds"`
	CreatedAt string      `json:"created_at,omitempty"`
}

type AdafruitIOUploader struct {
	mu      sync.Mutex
	cfg     config.AdafruitIOConfig
	timeout time.Duration
	client  *resty.Client
}

func NewAdafruitIO(cfg config.AdafruitIOConfig, timeout time.Duration) (*AdafruitIOUploader, error) {
	if cfg.Username == "" || cfg.Key == "" {
		return nil, errors.New("adafruitio: username and key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	a := &AdafruitIOUploader{cfg: cfg, timeout: timeout}
	a.client = a.newClient()
	return a, nil
}

func (a *AdafruitIOUploader) newClient() *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(a.cfg.BaseURL, "/")).
		SetTimeout(a.timeout).
		SetHeader(headerKey, a.cfg.Key)
}

func (a *AdafruitIOUploader) Upload(ctx context.Context, f telemetry.Frame) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(newGroupData(f)).
		Post(fmt.Sprintf("/api/v2/%s/groups/%s/data", a.cfg.Username, a.cfg.Group))
	if err != nil {
		return fmt.Errorf("adafruitio post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("adafruitio post: status %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// Reset replaces the HTTP client so no pooled connection survives a
// wireless re-association.
func (a *AdafruitIOUploader) Reset(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client.GetClient().CloseIdleConnections()
	a.client = a.newClient()
	return nil
}

func (a *AdafruitIOUploader) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client.GetClient().CloseIdleConnections()
	return nil
}

func newGroupData(f telemetry.Frame) groupData {
	fields := f.Fields()
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	d := groupData{Feeds: make([]feedValue, 0, len(names))}
	for _, name := range names {
		d.Feeds = append(d.Feeds, feedValue{Key: FeedKey(name), Value: fields[name]})
	}
	if !f.Timestamp.IsZero() {
		d.CreatedAt = f.Timestamp.UTC().Format(time.RFC3339)
	}
	return d
}

// FeedKey turns a field name into an Adafruit IO feed key.
func FeedKey(field string) string {
	return strings.ReplaceAll(field, "_", "-")
}
