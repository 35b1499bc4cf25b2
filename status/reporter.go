package status

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

// Sink delivers events somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

// Reporter fans events out to every sink. Sink failures are logged and
// never returned: status reporting must not fail an agent run.
type Reporter struct {
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewReporter creates a reporter. Nil sinks are skipped.
func NewReporter(logger *zap.Logger, sinks ...Sink) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reporter{
		logger: logger.With(zap.String("component", "status_reporter")),
		now:    time.Now,
	}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// Report stamps the event and delivers it to every sink in order.
func (r *Reporter) Report(ctx context.Context, e Event) Event {
	if e.Timestamp == 0 {
		e.Timestamp = nowMillis(r.now)
	}

	for _, s := range r.sinks {
		if err := s.Send(ctx, e); err != nil {
			r.logger.Warn("status sink failed",
				zap.String("sink", s.Name()),
				zap.String("agent", e.AgentName()),
				zap.String("status", string(e.Status)),
				zap.Error(err),
			)
		}
	}

	r.logger.Debug("status reported",
		zap.String("agent", e.AgentName()),
		zap.String("session_id", e.SessionID),
		zap.String("status", string(e.Status)),
	)
	return e
}

// Close closes every sink that holds resources.
func (r *Reporter) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// CallbackFunc adapts a function into a Sink.
type CallbackFunc func(ctx context.Context, e Event) error

// Name implements Sink.
func (CallbackFunc) Name() string { return "callback" }

// Send implements Sink.
func (f CallbackFunc) Send(ctx context.Context, e Event) error { return f(ctx, e) }
