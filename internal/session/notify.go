package session

import "log"

// Notifier receives lifecycle signals for one logical user-visible operation.
// The controller owns exactly one notification slot per session: it is
// acquired (replacing any previous slot, never duplicating it) when an upload
// or submission begins, and retired on every exit path: terminal state,
// error, cancel and reset.
type Notifier interface {
	Begin(id, message string)
	Progress(id, message string, percent float64)
	End(id string)
}

// noopNotifier is used when the embedding application supplies none
type noopNotifier struct{}

func (noopNotifier) Begin(string, string)             {}
func (noopNotifier) Progress(string, string, float64) {}
func (noopNotifier) End(string)                       {}

// LogNotifier writes notification signals to the standard logger. The CLI
// uses it to drive its single progress line.
type LogNotifier struct{}

func (LogNotifier) Begin(id, message string) {
	log.Printf("[DEBUG] %s", message)
}

func (LogNotifier) Progress(id, message string, percent float64) {
	log.Printf("[DEBUG] %s (%.0f%%)", message, percent)
}

func (LogNotifier) End(id string) {}
