// Package notify delivers user-facing messages to the host UI.
package notify

import (
	"github.com/sirupsen/logrus"
)

type Level int

const (
	Success Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "unknown"
}

// Notification is one message for the user.
type Notification struct {
	Level   Level
	Message string
}

// Notifier shows notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to a Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l LogNotifier) Notify(n Notification) {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("notification", n.Level.String())
	switch n.Level {
	case Error:
		entry.Error(n.Message)
	case Warning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}
}

// Recorder keeps every notification in order. Safe for one goroutine.
type Recorder struct {
	Items []Notification
}

func (r *Recorder) Notify(n Notification) { r.Items = append(r.Items, n) }

// Count returns how many notifications of level were recorded.
func (r *Recorder) Count(level Level) int {
	n := 0
	for _, it := range r.Items {
		if it.Level == level {
			n++
		}
	}
	return n
}
