package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericogr/weather-station/pkg/telemetry"
)

// Display draws a frame on a local screen.
type Display interface {
	Render(ctx context.Context, f telemetry.Frame) error
	Close() error
}

// Uploader forwards a frame to a remote telemetry sink over a session that
// can be re-established with Reset.
type Uploader interface {
	Upload(ctx context.Context, f telemetry.Frame) error
	Reset(ctx context.Context) error
	Close() error
}

// Sink is what the acquisition loop emits frames to.
type Sink interface {
	Render(ctx context.Context, f telemetry.Frame) error
	Upload(ctx context.Context, f telemetry.Frame) error
}

const (
	OpRender = "render"
	OpUpload = "upload"
)

// TransportFault wraps a render or upload failure.
type TransportFault struct {
	Op  string
	Err error
}

func (f *TransportFault) Error() string {
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f *TransportFault) Unwrap() error { return f.Err }

type sink struct {
	display  Display
	uploader Uploader
}

// NewSink pairs a display with an uploader.
func NewSink(d Display, u Uploader) Sink {
	return &sink{display: d, uploader: u}
}

func (s *sink) Render(ctx context.Context, f telemetry.Frame) error {
	if err := s.display.Render(ctx, f); err != nil {
		return &TransportFault{Op: OpRender, Err: err}
	}
	return nil
}

func (s *sink) Upload(ctx context.Context, f telemetry.Frame) error {
	if err := s.uploader.Upload(ctx, f); err != nil {
		return &TransportFault{Op: OpUpload, Err: err}
	}
	return nil
}

// MultiDisplay renders to every display in order.
type MultiDisplay []Display

func (m MultiDisplay) Render(ctx context.Context, f telemetry.Frame) error {
	var errs []error
	for _, d := range m {
		if err := d.Render(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiDisplay) Close() error {
	var errs []error
	for _, d := range m {
		errs = append(errs, d.Close())
	}
	return errors.Join(errs...)
}

// Discard is the uploader used when no telemetry backend is configured.
type Discard struct{}

func (Discard) Upload(context.Context, telemetry.Frame) error { return nil }
func (Discard) Reset(context.Context) error                   { return nil }
func (Discard) Close() error                                  { return nil }
