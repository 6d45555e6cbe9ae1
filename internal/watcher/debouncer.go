package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of events for the same path into one.
// A save from most editors arrives as several writes, and a copy into
// the drop directory arrives as create plus writes. Within a window
// the sequence collapses by first and latest operation:
//
//	create then modify -> create
//	create then delete -> dropped entirely
//	modify then delete -> delete
//	delete then create -> modify
//
// Batches preserve the order in which paths were first seen.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	order   []string
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer returns a debouncer that emits a batch once no event
// has arrived for window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, 8),
	}
}

// Add records an event, merging it with any pending event for the
// same path.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	existing, ok := d.pending[event.Path]
	if !ok {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
		d.order = append(d.order, event.Path)
		d.reschedule()
		return
	}

	merged, keep := coalesce(existing.firstOp, existing.event, event)
	if !keep {
		delete(d.pending, event.Path)
		d.forget(event.Path)
	} else {
		existing.event = merged
	}
	d.reschedule()
}

// coalesce merges a pending event with the next one for the same
// path. keep is false when the pair cancels out.
func coalesce(firstOp Operation, have, next FileEvent) (merged FileEvent, keep bool) {
	switch firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			// Still a brand new file from the consumer's view.
			return have, true
		case OpDelete:
			// Appeared and vanished inside one window.
			return FileEvent{}, false
		}
	case OpDelete:
		if next.Operation == OpCreate {
			// Removed and rewritten counts as a content change.
			next.Operation = OpModify
			return next, true
		}
	}
	return next, true
}

// reschedule pushes the flush out by one full window. Callers hold
// the mutex.
func (d *Debouncer) reschedule() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) forget(path string) {
	for i, p := range d.order {
		if p == path {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

// flush emits every pending event as one batch.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, path := range d.order {
		if pe, ok := d.pending[path]; ok {
			batch = append(batch, pe.event)
		}
	}
	d.pending = make(map[string]*pendingEvent)
	d.order = d.order[:0]

	// Never block the timer goroutine on a stalled consumer.
	select {
	case d.output <- batch:
	default:
	}
}

// Output returns the channel of coalesced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop halts the debouncer and closes its output channel. Safe to
// call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
