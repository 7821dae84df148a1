// Package acquisition drives the station: read every sensor, convert, emit,
// sleep, and recover from any fault by resetting the transport and retrying.
package acquisition

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ericogr/weather-station/pkg/convert"
	"github.com/ericogr/weather-station/pkg/logging"
	"github.com/ericogr/weather-station/pkg/output"
	"github.com/ericogr/weather-station/pkg/sensor"
	"github.com/ericogr/weather-station/pkg/telemetry"
)

// Acquirer reads one complete set of sensor values.
type Acquirer interface {
	ReadAll(ctx context.Context) ([]sensor.Reading, error)
}

// Transport is the session re-established after a failed cycle.
type Transport interface {
	Reset(ctx context.Context) error
}

// RetryState counts failed cycles since the last successful one.
type RetryState struct {
	ConsecutiveFailures uint
	LastReset           time.Time
}

// WithLogger sets the logger for the loop
func WithLogger(logger *slog.Logger) func(l *Loop) {
	return func(l *Loop) {
		l.logger = logger.With(slog.String("component", "acquisition"))
	}
}

// WithClock replaces time.Now for frame timestamps and reset stamps.
func WithClock(now func() time.Time) func(l *Loop) {
	return func(l *Loop) {
		l.now = now
	}
}

// WithSleep replaces the context-aware sleep used between cycles.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) func(l *Loop) {
	return func(l *Loop) {
		l.sleep = sleep
	}
}

// WithSensorFaultReset controls whether a sensor fault also resets the
// transport. Enabled by default.
func WithSensorFaultReset(enabled bool) func(l *Loop) {
	return func(l *Loop) {
		l.resetOnSensorFault = enabled
	}
}

// WithRetryDelay pauses before re-acquiring after a failure. Zero by default.
func WithRetryDelay(d time.Duration) func(l *Loop) {
	return func(l *Loop) {
		l.retryDelay = d
	}
}

// Loop is the acquisition state machine. It is driven by a single goroutine.
type Loop struct {
	port      Acquirer
	sink      output.Sink
	transport Transport
	period    time.Duration
	cal       convert.WindCalibration

	resetOnSensorFault bool
	retryDelay         time.Duration
	now                func() time.Time
	sleep              func(ctx context.Context, d time.Duration) error
	logger             *slog.Logger

	state    State
	retry    RetryState
	readings []sensor.Reading
	frame    telemetry.Frame
	fault    error
	failedIn State
}

// New creates a loop in the Idle state.
func New(port Acquirer, sink output.Sink, transport Transport, period time.Duration, cal convert.WindCalibration, options ...func(l *Loop)) *Loop {
	l := Loop{
		port:               port,
		sink:               sink,
		transport:          transport,
		period:             period,
		cal:                cal,
		resetOnSensorFault: true,
		now:                time.Now,
		sleep:              sleepCtx,
		logger:             logging.Discard(),
		state:              Idle,
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

func (l *Loop) State() State { return l.state }

func (l *Loop) Retry() RetryState { return l.retry }

// Run steps the machine until ctx is cancelled and returns ctx's error.
// Sensor and transport faults never end it.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("acquisition started", "period", l.period.String())
	for {
		if err := l.Step(ctx); err != nil {
			l.logger.Info("acquisition stopped", "state", l.state.String(), "reason", err)
			return err
		}
	}
}

// Step performs exactly one transition. The only error it returns is the
// context's, once ctx is done.
func (l *Loop) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch l.state {
	case Idle:
		l.state = Acquiring

	case Acquiring:
		readings, err := l.port.ReadAll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.fail(err)
			return nil
		}
		l.readings = readings
		l.state = Converting

	case Converting:
		frame, err := telemetry.NewFrame(l.readings, l.cal, l.now())
		l.readings = nil
		if err != nil {
			l.fail(err)
			return nil
		}
		l.frame = frame
		l.state = Emitting

	case Emitting:
		err := l.sink.Render(ctx, l.frame)
		if err == nil {
			err = l.sink.Upload(ctx, l.frame)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.fail(err)
			return nil
		}
		l.logger.Debug("cycle complete",
			"uv_index", l.frame.UVIndex,
			"temperature", l.frame.Climate.Temperature,
			"humidity", l.frame.Climate.Humidity,
			"pressure", l.frame.Climate.Pressure,
			"eco2", l.frame.Gas.ECO2,
			"tvoc", l.frame.Gas.TVOC,
			"wind_speed", l.frame.WindSpeed,
		)
		l.frame = telemetry.Frame{}
		l.state = Sleeping

	case Sleeping:
		l.retry.ConsecutiveFailures = 0
		if err := l.sleep(ctx, l.period); err != nil {
			return err
		}
		l.state = Idle

	case Recovering:
		l.recover(ctx)
		if l.retryDelay > 0 {
			if err := l.sleep(ctx, l.retryDelay); err != nil {
				return err
			}
		}
		l.state = Acquiring
	}
	return nil
}

func (l *Loop) fail(err error) {
	l.fault = err
	l.failedIn = l.state
	l.readings = nil
	l.frame = telemetry.Frame{}
	l.state = Recovering
}

func (l *Loop) recover(ctx context.Context) {
	l.retry.ConsecutiveFailures++

	attrs := []any{
		"failed_in", l.failedIn.String(),
		"consecutive_failures", l.retry.ConsecutiveFailures,
		"error", l.fault,
	}
	var (
		sf *sensor.Fault
		tf *output.TransportFault
	)
	switch {
	case errors.As(l.fault, &tf):
		attrs = append(attrs, "op", tf.Op)
	case errors.As(l.fault, &sf):
		attrs = append(attrs, "source", string(sf.Source))
	}
	if !l.retry.LastReset.IsZero() {
		attrs = append(attrs, "last_reset", humanize.Time(l.retry.LastReset))
	}
	l.logger.Error("cycle failed", attrs...)

	// a failed conversion is handled like a sensor fault
	if tf != nil || l.resetOnSensorFault {
		if err := l.transport.Reset(ctx); err != nil {
			l.logger.Warn("transport reset failed", "error", err)
		}
		l.retry.LastReset = l.now()
	}
	l.fault = nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
