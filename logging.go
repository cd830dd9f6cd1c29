package track

import "time"

// LogEvent describes a tracking operation for logging.
type LogEvent struct {
	Op       string
	Type     string
	ID       string
	Property string
	Duration time.Duration
	Err      error
}

// Logger records tracking events.
type Logger interface {
	LogTracking(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// LogTracking implements Logger.
func (f LoggerFunc) LogTracking(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogTracking(LogEvent) {}

// WithLogger attaches a logger to the call.
func WithLogger(logger Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}
