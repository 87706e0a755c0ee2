// Package emitter implements the Result Emitter (spec §4.8): a synchronous,
// same-goroutine fan-out of engine events to observers. Grounded on the
// teacher's gateway.Hub.broadcast, but simplified and made synchronous —
// the hub fans out over buffered per-client channels because WS clients
// must never block the engine; observers here run in-process and the
// ordering guarantee in spec §4.8 depends on each observer seeing events in
// the exact order the Serial Processor produced them, so a direct call
// replaces the buffered channel entirely.
package emitter

import (
	"livestratexec/internal/strategy"
)

// Snapshot is a point-in-time execution result broadcast after the Serial
// Processor handles a message. Intrabar distinguishes a result computed
// from an in-progress (unclosed) candle update from one computed after a
// candle closed — spec §9 leaves intrabar deduplication unspecified, so the
// emitter fires on every processed message and lets observers filter on
// this field instead of silently dropping anything (see DESIGN.md).
type Snapshot struct {
	Symbol         string
	TF             string
	MTS            int64
	Intrabar       bool
	Position       *strategy.Position
	RealizedPnl    float64
	UnrealizedPnl  float64
	ReferencePrice float64
}

// OpenedPosition is broadcast alongside every execution-results snapshot
// taken while the strategy reports an open position.
type OpenedPosition struct {
	Symbol   string
	Position strategy.Position
}

// Observer receives engine events synchronously, in processing order. All
// three methods must return quickly and must not block — they run inline
// on the Serial Processor's goroutine (spec §4.8: ordering across event
// types is only guaranteed if delivery is synchronous).
type Observer interface {
	OnError(err error)
	OnOpenedPosition(evt OpenedPosition)
	OnExecutionResults(snap Snapshot)
}

// Emitter fans events out to every registered observer, in registration
// order, synchronously. A panicking or misbehaving observer is the
// caller's problem — the emitter does not recover panics, matching the
// teacher's broadcast which never isolates one client's mistakes from
// another's send.
type Emitter struct {
	observers []Observer
}

func New() *Emitter {
	return &Emitter{}
}

// Subscribe registers an observer. Not safe for concurrent use with
// emission — register all observers before the engine starts processing.
func (e *Emitter) Subscribe(o Observer) {
	e.observers = append(e.observers, o)
}

func (e *Emitter) EmitError(err error) {
	for _, o := range e.observers {
		o.OnError(err)
	}
}

func (e *Emitter) EmitOpenedPosition(evt OpenedPosition) {
	for _, o := range e.observers {
		o.OnOpenedPosition(evt)
	}
}

func (e *Emitter) EmitExecutionResults(snap Snapshot) {
	for _, o := range e.observers {
		o.OnExecutionResults(snap)
	}
}
