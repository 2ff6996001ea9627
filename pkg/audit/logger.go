package audit

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records event. Sinks may set event.ID.
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the sink
	Close() error
}

// NopLogger discards every event
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(context.Context, *Event) error { return nil }

// Close implements Logger
func (NopLogger) Close() error { return nil }

// LogrusLogger writes events to the process log
type LogrusLogger struct {
	logger *logrus.Logger
}

// NewLogrusLogger creates a sink that writes through logger
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogrusLogger{logger: logger}
}

// Log implements Logger
func (l *LogrusLogger) Log(_ context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit":           true,
		"event_type":      string(event.EventType),
		"status":          string(event.Status),
		"organization_id": event.OrganizationID,
		"resource_type":   string(event.ResourceType),
		"resource_id":     event.ResourceID,
	}
	if event.ActorID != nil {
		fields["actor_id"] = *event.ActorID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}
	l.logger.WithFields(fields).Info(event.Message)
	return nil
}

// Close implements Logger
func (l *LogrusLogger) Close() error { return nil }

// MultiLogger fans every event out to several sinks
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to every given sink in order
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log implements Logger. A failing sink does not stop the others.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Logger
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
