// Package events implements the commit-notification mechanism of §6:
// "on commit with non-empty delta, a changed(added-count, removed-count,
// commit-version) event." The notification/event bus proper is an
// external collaborator; this package only defines the Observer seam
// the core calls into after a flush.
//
// Grounded on tailored-agentic-units-kernel/observability's
// Event/Observer shape, narrowed to the one event kind the storage core
// itself needs to emit.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Changed is the event emitted after a commit that altered the store.
type Changed struct {
	Partition     string // "explicit" or "inferred"
	Added         int
	Removed       int
	CommitVersion uint64
	Timestamp     time.Time
}

// Observer receives changed-events. Implementations must not block for
// long: Notify is called synchronously from the committing sink's
// flush, while the store's write lock is still held.
type Observer interface {
	OnChanged(ctx context.Context, ev Changed)
}

// NoOp discards every event; it is the default observer for a store
// opened without one configured.
type NoOp struct{}

func (NoOp) OnChanged(context.Context, Changed) {}

// SlogObserver logs each changed-event as a structured slog record,
// mirroring tailored-agentic-units-kernel/observability.SlogObserver's
// attribute-flattening shape.
type SlogObserver struct {
	Logger *slog.Logger
}

func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{Logger: logger}
}

func (o *SlogObserver) OnChanged(ctx context.Context, ev Changed) {
	o.Logger.LogAttrs(ctx, slog.LevelInfo, "statements changed",
		slog.String("partition", ev.Partition),
		slog.Int("added", ev.Added),
		slog.Int("removed", ev.Removed),
		slog.Uint64("commit_version", ev.CommitVersion),
	)
}

// Emitter fans a single changed-event out to every registered observer.
// A store holds one Emitter and registers observers on it (there is no
// way to unregister one);
// Notify never blocks on a slow observer beyond that observer's own
// OnChanged call, and a panicking observer is isolated so it cannot
// abort the committing transaction.
type Emitter struct {
	observers []Observer
}

func NewEmitter(observers ...Observer) *Emitter {
	return &Emitter{observers: observers}
}

func (e *Emitter) Register(o Observer) {
	e.observers = append(e.observers, o)
}

func (e *Emitter) Notify(ctx context.Context, ev Changed) {
	for _, o := range e.observers {
		notifyOne(ctx, o, ev)
	}
}

func notifyOne(ctx context.Context, o Observer, ev Changed) {
	defer func() { recover() }()
	o.OnChanged(ctx, ev)
}
