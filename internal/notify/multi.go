package notify

import (
	"log/slog"

	"github.com/dishly/dishly/internal/interaction"
)

var (
	_ interaction.Notifier = (*Multi)(nil)
	_ interaction.Notifier = (*Log)(nil)
)

// Multi fans out notifications to all registered notifiers.
type Multi struct {
	notifiers []interaction.Notifier
}

// NewMulti creates a notifier that delegates to all provided notifiers. Nil
// entries are skipped.
func NewMulti(notifiers ...interaction.Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) Success(text string) {
	for _, n := range m.notifiers {
		n.Success(text)
	}
}

func (m *Multi) Error(text string) {
	for _, n := range m.notifiers {
		n.Error(text)
	}
}

// Log records notifications with the given attributes, so user-facing
// failures show up next to the request logs.
type Log struct {
	logger *slog.Logger
}

func NewLog(attrs ...any) *Log {
	return &Log{logger: slog.Default().With(attrs...)}
}

func (l *Log) Success(text string) {
	l.logger.Debug("notify: success", "text", text)
}

func (l *Log) Error(text string) {
	l.logger.Info("notify: error shown to user", "text", text)
}
