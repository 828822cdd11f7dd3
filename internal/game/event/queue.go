package event

import (
	"sync"
	"time"
)

// Queue is an unbounded thread-safe FIFO of events drained by the SSE
// stream. Get blocks with a timeout so the drainer can interleave
// heartbeats between events.
type Queue struct {
	mu    sync.Mutex
	items []Event
	// wake is signalled (capacity 1) whenever an item is appended.
	wake chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Put appends an event to the queue.
func (q *Queue) Put(evt Event) {
	q.mu.Lock()
	q.items = append(q.items, evt)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Get removes and returns the oldest event. It blocks up to timeout and
// returns ok=false when the queue stayed empty.
func (q *Queue) Get(timeout time.Duration) (Event, bool) {
	if evt, ok := q.pop(); ok {
		return evt, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.wake:
			if evt, ok := q.pop(); ok {
				return evt, true
			}
			// Another drainer won the race; keep waiting out the timeout.
		case <-timer.C:
			return Event{}, false
		}
	}
}

// Len reports the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Event{}, false
	}
	evt := q.items[0]
	q.items = q.items[1:]
	return evt, true
}
