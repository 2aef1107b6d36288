package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSlot(name string, limit int, minInterval time.Duration) *Slot {
	return NewSlot(name, name+"-key", limit, minInterval)
}

func TestRotator_RoundRobin(t *testing.T) {
	slots := []*Slot{
		newTestSlot("a", 100, 0),
		newTestSlot("b", 100, 0),
		newTestSlot("c", 100, 0),
	}
	r := NewRotator(slots, 0)

	var order []string
	for i := 0; i < 6; i++ {
		s, ok := r.Next()
		require.True(t, ok)
		r.RecordUse(s)
		order = append(order, s.Name)
	}
	require.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, order)
}

func TestRotator_NeverExceedsBufferedLimit(t *testing.T) {
	slot := newTestSlot("a", 10, 0)
	r := NewRotator([]*Slot{slot}, 3)

	granted := 0
	for {
		s, ok := r.Next()
		if !ok {
			break
		}
		r.RecordUse(s)
		granted++
		require.LessOrEqual(t, s.RequestsToday(), 10-3)
	}
	// dailyLimit - buffer requests, then the slot stops being offered.
	require.Equal(t, 7, granted)
	require.True(t, r.Exhausted())
}

func TestRotator_MinIntervalGate(t *testing.T) {
	slot := newTestSlot("a", 100, 10*time.Second)
	r := NewRotator([]*Slot{slot}, 0)

	base := time.Now()
	r.now = func() time.Time { return base }

	s, ok := r.Next()
	require.True(t, ok)
	r.RecordUse(s)

	// Within the interval the slot must not be offered again.
	r.now = func() time.Time { return base.Add(5 * time.Second) }
	_, ok = r.Next()
	require.False(t, ok)

	r.now = func() time.Time { return base.Add(10 * time.Second) }
	_, ok = r.Next()
	require.True(t, ok)
}

func TestRotator_MidnightResetOnce(t *testing.T) {
	slot := newTestSlot("a", 10, 0)
	r := NewRotator([]*Slot{slot}, 0)

	base := time.Date(2026, 8, 23, 23, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	slot.resetAt = nextMidnight(base)

	for i := 0; i < 10; i++ {
		if s, ok := r.Next(); ok {
			r.RecordUse(s)
		}
	}
	require.Equal(t, 10, slot.RequestsToday())
	_, ok := r.Next()
	require.False(t, ok)

	// Crossing midnight resets the counter to zero exactly once.
	r.now = func() time.Time { return base.Add(2 * time.Hour) }
	s, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, 0, s.RequestsToday())
	r.RecordUse(s)
	require.Equal(t, 1, s.RequestsToday())

	// A later Next within the same day must not reset again.
	r.now = func() time.Time { return base.Add(3 * time.Hour) }
	s, ok = r.Next()
	require.True(t, ok)
	require.Equal(t, 1, s.RequestsToday())
}

func TestRotator_SkipsDrainedSlot(t *testing.T) {
	a := newTestSlot("a", 5, 0)
	b := newTestSlot("b", 100, 0)
	r := NewRotator([]*Slot{a, b}, 0)

	// Drain slot a.
	a.requestsToday = 5

	for i := 0; i < 4; i++ {
		s, ok := r.Next()
		require.True(t, ok)
		require.Equal(t, "b", s.Name)
		r.RecordUse(s)
	}
}

func TestRotator_Remaining(t *testing.T) {
	a := newTestSlot("a", 10, 0)
	b := newTestSlot("b", 10, 0)
	r := NewRotator([]*Slot{a, b}, 2)

	require.Equal(t, 16, r.Remaining())
	a.requestsToday = 8
	require.Equal(t, 8, r.Remaining())
	b.requestsToday = 10
	require.Equal(t, 0, r.Remaining())
	require.True(t, r.Exhausted())
}
