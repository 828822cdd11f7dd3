package orchestrator

import (
	"errors"
	"sync/atomic"
)

// ErrBusy is returned when an AI request is already in flight. Handlers
// map it to 429 so clients back off instead of piling up.
var ErrBusy = errors.New("an AI request is already being processed")

// busyGate is the single-flight guard for the AI pipeline. Only one
// player action, roll submission, next-step trigger, or retry may run at
// a time; everything else bounces immediately rather than queueing.
type busyGate struct {
	busy atomic.Bool
}

// TryAcquire claims the gate without blocking.
func (g *busyGate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release opens the gate again.
func (g *busyGate) Release() {
	g.busy.Store(false)
}

// Busy reports whether a request is in flight.
func (g *busyGate) Busy() bool {
	return g.busy.Load()
}
