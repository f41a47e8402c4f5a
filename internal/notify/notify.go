// Package notify carries human-readable cart events to whoever renders
// them. Sinks are fire-and-forget: nothing in the cart core waits on them.
package notify

import (
	"context"
	"log/slog"
	"time"
)

type Type string

const (
	Success Type = "success"
	Error   Type = "error"
	Info    Type = "info"
)

type Notification struct {
	Message  string        `json:"message"`
	Type     Type          `json:"type"`
	Position string        `json:"position,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notification)

func (f SinkFunc) Notify(n Notification) { f(n) }

// Fanout delivers every notification to each sink in order.
type Fanout []Sink

func (f Fanout) Notify(n Notification) {
	for _, s := range f {
		s.Notify(n)
	}
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(n Notification) {
	level := slog.LevelInfo
	if n.Type == Error {
		level = slog.LevelWarn
	}
	s.log.Log(context.Background(), level, n.Message, slog.String("type", string(n.Type)))
}
