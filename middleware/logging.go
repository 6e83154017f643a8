// Package middleware provides user middleware for the dispatch pipeline:
// logging, command validation, and metadata stamping. Insert them via
// RouterConfig.Middleware; they run before the built-in identity
// extraction and consistency guarantee.
package middleware

import (
	"time"

	"github.com/fxsml/gocommand"
)

const startedAtKey = "middleware.logging.started_at"

// LoggingConfig configures the logging middleware.
type LoggingConfig struct {
	// Logger receives the dispatch logs. Default: gocommand.DefaultLogger().
	Logger gocommand.Logger
}

// Logging logs every dispatch: debug on entry and success, error on
// failure, with command type, stream, and duration.
func Logging(config LoggingConfig) gocommand.Middleware {
	logger := config.Logger
	if logger == nil {
		logger = gocommand.DefaultLogger()
	}
	return &logging{logger: logger}
}

type logging struct {
	logger gocommand.Logger
}

func (l *logging) BeforeDispatch(p *gocommand.Pipeline) {
	p.Assign(startedAtKey, time.Now())
	l.logger.Debug("dispatching command",
		"command", commandName(p),
		"command_uuid", p.Payload.CommandUUID,
		"correlation_id", p.Payload.CorrelationID)
}

func (l *logging) AfterDispatch(p *gocommand.Pipeline) {
	l.logger.Debug("dispatch succeeded",
		"command", commandName(p),
		"stream", p.Payload.StreamID,
		"duration", elapsed(p))
}

func (l *logging) AfterFailure(p *gocommand.Pipeline) {
	l.logger.Error("dispatch failed",
		"command", commandName(p),
		"stream", p.Payload.StreamID,
		"error", p.Err,
		"duration", elapsed(p))
}

func commandName(p *gocommand.Pipeline) string {
	if p.Payload == nil || p.Payload.Command == nil {
		return ""
	}
	return typeName(p.Payload.Command)
}

func elapsed(p *gocommand.Pipeline) time.Duration {
	if v, ok := p.Assigned(startedAtKey); ok {
		if started, ok := v.(time.Time); ok {
			return time.Since(started)
		}
	}
	return 0
}
