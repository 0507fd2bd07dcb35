package cost

import (
	"slices"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// EventKind discriminates the four lifecycle events of a request.
type EventKind string

// Lifecycle events, in emission order. Start precedes any Calculated; Done
// and Error are terminal and mutually exclusive.
const (
	EventStart      EventKind = "start"
	EventCalculated EventKind = "calculated"
	EventDone       EventKind = "done"
	EventError      EventKind = "error"
)

// Event is one lifecycle emission. Entries is set for start and done, Entry
// for calculated, Err for error.
type Event struct {
	Kind    EventKind
	Entries []importmodel.Entry
	Entry   importmodel.Entry
	Err     error
}

// eventBuffer absorbs short consumer stalls without blocking the pipeline.
const eventBuffer = 16

// Emitter streams the lifecycle of one request. The channel closes after the
// terminal event; consumers must drain it.
type Emitter struct {
	ch chan Event
}

func newEmitter() *Emitter {
	return &Emitter{ch: make(chan Event, eventBuffer)}
}

// Events returns the lifecycle stream.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

func (e *Emitter) start(entries []importmodel.Entry) {
	e.ch <- Event{Kind: EventStart, Entries: slices.Clone(entries)}
}

func (e *Emitter) calculated(entry importmodel.Entry) {
	e.ch <- Event{Kind: EventCalculated, Entry: entry}
}

func (e *Emitter) done(entries []importmodel.Entry) {
	e.ch <- Event{Kind: EventDone, Entries: slices.Clone(entries)}
}

func (e *Emitter) fail(err error) {
	e.ch <- Event{Kind: EventError, Err: err}
}

func (e *Emitter) close() {
	close(e.ch)
}
