package backup

import (
	"fmt"
	"sync/atomic"
)

// StatusSink receives the status line of a running backup. Every call hands
// over a new string; implementations may keep it without copying.
type StatusSink interface {
	Publish(status string)
}

// FormatProgress renders the status line for a progress value in [0,1]
func FormatProgress(progress float64, message string) string {
	return fmt.Sprintf("Backup about %.0f%% done: %s", progress*100, message)
}

// StatusBoard is a StatusSink with one writer and any number of readers.
// The writer replaces the whole status on each publish, so a reader never
// sees a string that is still being built.
type StatusBoard struct {
	current atomic.Pointer[string]
	updates atomic.Uint64
}

// NewStatusBoard creates an empty status board
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{}
}

// Publish implements StatusSink
func (b *StatusBoard) Publish(status string) {
	b.current.Store(&status)
	b.updates.Add(1)
}

// Current returns the last published status, or "" before the first one
func (b *StatusBoard) Current() string {
	if s := b.current.Load(); s != nil {
		return *s
	}
	return ""
}

// Updates returns how many statuses have been published
func (b *StatusBoard) Updates() uint64 {
	return b.updates.Load()
}

// StatusFunc adapts a function to StatusSink
type StatusFunc func(status string)

// Publish implements StatusSink
func (f StatusFunc) Publish(status string) {
	f(status)
}

type discardStatus struct{}

func (discardStatus) Publish(string) {}
