package events

import (
	"sync"

	"peerescrow/core/types"
)

// Record is an event with its position in the recorder's stream.
type Record struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

// Recorder keeps the most recent events in a bounded ring so they can be
// served to pollers.
type Recorder struct {
	mu    sync.RWMutex
	buf   []Record
	next  int
	full  bool
	seq   uint64
	limit int
}

// DefaultRecorderCapacity is used when NewRecorder receives a non-positive
// capacity.
const DefaultRecorderCapacity = 1024

func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRecorderCapacity
	}
	return &Recorder{buf: make([]Record, capacity), limit: capacity}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	payload := PayloadOf(evt)
	if payload == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.buf[r.next] = Record{Sequence: r.seq, Event: payload}
	r.next = (r.next + 1) % r.limit
	if r.next == 0 {
		r.full = true
	}
}

// Since returns up to max records with a sequence greater than after, oldest
// first. A non-positive max returns everything retained.
func (r *Recorder) Since(after uint64, max int) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ordered := make([]Record, 0, r.limit)
	if r.full {
		ordered = append(ordered, r.buf[r.next:]...)
	}
	ordered = append(ordered, r.buf[:r.next]...)

	out := make([]Record, 0)
	for _, rec := range ordered {
		if rec.Sequence <= after {
			continue
		}
		out = append(out, rec)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// LastSequence returns the sequence of the newest recorded event.
func (r *Recorder) LastSequence() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}
