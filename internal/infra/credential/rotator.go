package credential

import (
	"sync"
	"time"
)

// Rotator selects the next usable credential in round-robin order.
//
// Next never charges a slot; callers report actual usage with
// RecordUse after the request completes, so a failed send never burns
// quota bookkeeping.
type Rotator struct {
	mu     sync.Mutex
	slots  []*Slot
	buffer int // headroom kept below each slot's daily limit
	last   int // index of the slot returned by the previous Next

	now func() time.Time
}

// NewRotator creates a rotator over the given slots.
func NewRotator(slots []*Slot, safetyBuffer int) *Rotator {
	return &Rotator{
		slots:  slots,
		buffer: safetyBuffer,
		last:   -1,
		now:    time.Now,
	}
}

// Next returns the first usable slot scanning round-robin from just
// past the last-returned slot, advancing the rotation pointer past it.
// Returns false when no slot currently qualifies; callers should back
// off and retry rather than treat that as permanent exhaustion (see
// Exhausted for the daily cap).
func (r *Rotator) Next() (*Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for i := range r.slots {
		idx := (r.last + 1 + i) % len(r.slots)
		s := r.slots[idx]
		s.maybeReset(now)
		if s.usable(now, r.buffer) {
			r.last = idx
			return s, true
		}
	}
	return nil, false
}

// RecordUse charges one request to the slot. Called once per issued
// request, after it completes, regardless of outcome.
func (r *Rotator) RecordUse(s *Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.requestsToday++
	s.lastRequest = r.now()
}

// Remaining returns the aggregate request headroom across all slots,
// after the safety buffer.
func (r *Rotator) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	total := 0
	for _, s := range r.slots {
		s.maybeReset(now)
		if left := s.DailyLimit - r.buffer - s.requestsToday; left > 0 {
			total += left
		}
	}
	return total
}

// Exhausted reports whether cumulative usage is within the buffer of
// the combined daily cap, meaning no further requests should be issued
// until the next reset.
func (r *Rotator) Exhausted() bool {
	return r.Remaining() == 0
}

// Slots exposes the pool for status reporting.
func (r *Rotator) Slots() []*Slot {
	return r.slots
}
