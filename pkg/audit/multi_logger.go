package audit

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MultiLogger fans one event out to several sinks, for deployments that
// keep a queryable database trail and a flat-file trail at once. Sinks
// are written concurrently; an event is not considered recorded until
// every sink has accepted it.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to every given sink.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes the event to all sinks and returns the first failure. A
// failed sink does not stop the others from receiving the event.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	var g errgroup.Group
	for _, logger := range m.loggers {
		logger := logger
		g.Go(func() error {
			return logger.Log(ctx, event)
		})
	}
	return g.Wait()
}

// Close closes every sink, returning the first failure.
func (m *MultiLogger) Close() error {
	var g errgroup.Group
	for _, logger := range m.loggers {
		logger := logger
		g.Go(logger.Close)
	}
	return g.Wait()
}
