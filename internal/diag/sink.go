// Package diag is the per-run diagnostic sink. Components receive a *Sink
// explicitly and report warnings and errors through it instead of writing
// to a shared output stream. The sink keeps every entry for the caller to
// inspect after the run and forwards each one to a logrus logger.
package diag

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level is the severity of an entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warning"
	LevelError Level = "error"
)

// Fields carries structured context for an entry (line, column, value...).
type Fields map[string]any

// Entry is one recorded diagnostic.
type Entry struct {
	Level     Level
	Component string
	Message   string
	Fields    Fields
}

// Sink accumulates entries for one run.
type Sink struct {
	mu      sync.Mutex
	log     logrus.FieldLogger
	entries []Entry
}

// New returns a Sink forwarding to log. A nil log discards output but still
// records entries.
func New(log logrus.FieldLogger) *Sink {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Sink{log: log}
}

// Discard returns a Sink that only records.
func Discard() *Sink { return New(nil) }

// Component returns a reporter bound to a component name.
func (s *Sink) Component(name string) *Reporter {
	return &Reporter{sink: s, component: name}
}

func (s *Sink) add(e Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	l := s.log.WithField("component", e.Component)
	if len(e.Fields) > 0 {
		l = l.WithFields(logrus.Fields(e.Fields))
	}
	switch e.Level {
	case LevelError:
		l.Error(e.Message)
	case LevelWarn:
		l.Warn(e.Message)
	default:
		l.Info(e.Message)
	}
}

// Entries returns a copy of all recorded entries in order.
func (s *Sink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Count returns how many entries have the given level.
func (s *Sink) Count(level Level) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Filter returns entries for one component, optionally restricted to a
// level (empty level matches all).
func (s *Sink) Filter(component string, level Level) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Component != component {
			continue
		}
		if level != "" && e.Level != level {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Reporter writes entries for a single component.
type Reporter struct {
	sink      *Sink
	component string
}

// Info records an informational entry.
func (r *Reporter) Info(msg string, f Fields) { r.report(LevelInfo, msg, f) }

// Warn records a non-fatal problem.
func (r *Reporter) Warn(msg string, f Fields) { r.report(LevelWarn, msg, f) }

// Error records a failure. Reporting an error does not stop the run; the
// caller decides whether it is fatal.
func (r *Reporter) Error(msg string, f Fields) { r.report(LevelError, msg, f) }

func (r *Reporter) report(level Level, msg string, f Fields) {
	if r == nil || r.sink == nil {
		return
	}
	r.sink.add(Entry{Level: level, Component: r.component, Message: msg, Fields: f})
}
