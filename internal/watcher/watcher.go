package watcher

import (
	"context"
	"time"
)

// Operation is a file system change.
type Operation int

const (
	// OpCreate is a new file.
	OpCreate Operation = iota
	// OpModify is a rewritten file.
	OpModify
	// OpDelete is a removed or renamed-away file.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change, with Path relative to the watched root.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Source produces debounced batches of file events.
type Source interface {
	// Start watches root until ctx is cancelled or Stop is called.
	Start(ctx context.Context, root string) error
	// Stop releases resources. Safe to call more than once.
	Stop() error
	// Events is closed when the source stops.
	Events() <-chan []FileEvent
	// Errors carries non-fatal errors and is closed when the source stops.
	Errors() <-chan error
}

// Options configures a watcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted. Default: 500ms.
	Debounce time.Duration
	// PollInterval is used when fsnotify is unavailable. Default: 2s.
	PollInterval time.Duration
	// EventBufferSize is the batch channel capacity. Default: 100.
	EventBufferSize int
	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:        500 * time.Millisecond,
		PollInterval:    2 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
