// Package credential manages the pool of API credentials and their
// usage accounting.
//
// Each credential has an independent daily quota and a minimum interval
// between requests. The Rotator offers the next usable slot in
// round-robin order; a slot is only charged after a request actually
// completed (RecordUse), never speculatively.
package credential

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/ratelimit"
)

// Slot is one rate-limited API key plus its usage accounting.
// Counters live in memory only and reset at each midnight boundary.
type Slot struct {
	Name        string
	Key         string
	ClientID    string // stable per-process identity sent for request diversity
	DailyLimit  int
	MinInterval time.Duration

	requestsToday int
	lastRequest   time.Time
	resetAt       time.Time
	limiter       ratelimit.Limiter
}

// NewSlot creates a slot with counters starting fresh.
func NewSlot(name, key string, dailyLimit int, minInterval time.Duration) *Slot {
	limiter := ratelimit.NewUnlimited()
	if minInterval > 0 {
		limiter = ratelimit.New(1, ratelimit.Per(minInterval))
	}
	return &Slot{
		Name:        name,
		Key:         key,
		ClientID:    uuid.NewString(),
		DailyLimit:  dailyLimit,
		MinInterval: minInterval,
		resetAt:     nextMidnight(time.Now()),
		limiter:     limiter,
	}
}

// Pace blocks until the slot's minimum request interval has elapsed.
// Called by the fetch client immediately before issuing a request.
func (s *Slot) Pace() {
	s.limiter.Take()
}

// RequestsToday returns the number of requests charged since the last
// daily reset. Only meaningful through the owning Rotator's lock.
func (s *Slot) RequestsToday() int {
	return s.requestsToday
}

// maybeReset zeroes the counter once the clock crosses the stored
// reset boundary, and schedules the next one.
func (s *Slot) maybeReset(now time.Time) {
	if now.Before(s.resetAt) {
		return
	}
	s.requestsToday = 0
	s.resetAt = nextMidnight(now)
}

func (s *Slot) usable(now time.Time, buffer int) bool {
	if s.requestsToday >= s.DailyLimit-buffer {
		return false
	}
	return now.Sub(s.lastRequest) >= s.MinInterval
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
