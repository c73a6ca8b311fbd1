// Package diag carries recoverable warnings and errors from the codec and
// the pipeline to whoever is listening.
//
// Fatal conditions are still returned as errors; a Sink only sees the
// informational side channel, such as a lowercase variable name in a system
// file or the switch of a case stream from memory to disk.
package diag

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Severity of a diagnostic.
type Severity int

const (
	Note Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "note"
	}
}

// Message is one diagnostic. Offset is -1 when no position applies.
type Message struct {
	Severity  Severity
	Component string
	File      string
	Offset    int64
	Text      string
}

func (m Message) String() string {
	loc := m.File
	if m.Offset >= 0 {
		if loc != "" {
			loc += " "
		}
		loc += fmt.Sprintf("at offset %d", m.Offset)
	}
	if loc != "" {
		return fmt.Sprintf("%s: %s: %s", m.Severity, loc, m.Text)
	}
	return fmt.Sprintf("%s: %s", m.Severity, m.Text)
}

// Sink receives diagnostics.
type Sink interface {
	Emit(m Message)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Message)

// Emit calls f(m).
func (f SinkFunc) Emit(m Message) { f(m) }

// Discard drops every message.
var Discard Sink = SinkFunc(func(Message) {})

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// Warnf emits a warning through s.
func Warnf(s Sink, component, file string, offset int64, format string, args ...interface{}) {
	s.Emit(Message{
		Severity:  Warning,
		Component: component,
		File:      file,
		Offset:    offset,
		Text:      fmt.Sprintf(format, args...),
	})
}

type logSink struct {
	log *zap.Logger
}

// NewLogSink routes messages to a zap logger.
func NewLogSink(log *zap.Logger) Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &logSink{log: log}
}

func (l *logSink) Emit(m Message) {
	fields := make([]zap.Field, 0, 3)
	if m.Component != "" {
		fields = append(fields, zap.String("component", m.Component))
	}
	if m.File != "" {
		fields = append(fields, zap.String("file", m.File))
	}
	if m.Offset >= 0 {
		fields = append(fields, zap.Int64("offset", m.Offset))
	}
	switch m.Severity {
	case Error:
		l.log.Error(m.Text, fields...)
	case Warning:
		l.log.Warn(m.Text, fields...)
	default:
		l.log.Info(m.Text, fields...)
	}
}

// Collector records messages in arrival order.
type Collector struct {
	mu       sync.Mutex
	messages []Message
}

// Emit implements Sink.
func (c *Collector) Emit(m Message) {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
}

// Messages returns a copy of everything collected.
func (c *Collector) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Count returns how many messages of severity s were collected.
func (c *Collector) Count(s Severity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.messages {
		if m.Severity == s {
			n++
		}
	}
	return n
}

// Tee fans a message out to several sinks.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(m Message) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(m)
			}
		}
	})
}
