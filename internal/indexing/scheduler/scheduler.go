// Package scheduler maintains the two work queues and the processed
// set, and decides which block number the ingestion loop handles next.
//
// The priority queue is a FIFO of live-feed heights; the backfill
// queue is an ascending, duplicate-free sequence combining unresolved
// historical gaps and the next unclaimed contiguous range. Gap
// detection needs no remote calls: it is a scan of the processed set
// over the already-covered range.
package scheduler

import (
	"sort"
	"sync"
)

// Scheduler owns the queues and the processed set. Safe for the
// live-feed goroutine to push into while the ingestion loop pops.
type Scheduler struct {
	mu sync.Mutex

	startBlock uint64
	window     int // max blocks queued past the progress marker

	processed  map[uint64]struct{}
	priority   []uint64
	queuedLive map[uint64]struct{}
	backfill   []uint64
	inBackfill map[uint64]struct{}
	watermark  uint64 // highest height seen from the live feed
}

// New creates a scheduler for the range starting at startBlock.
func New(startBlock uint64, window int) *Scheduler {
	return &Scheduler{
		startBlock: startBlock,
		window:     window,
		processed:  make(map[uint64]struct{}),
		queuedLive: make(map[uint64]struct{}),
		inBackfill: make(map[uint64]struct{}),
	}
}

// SeedProcessed marks blocks as already processed, used at startup to
// rebuild the set from the dataset rows, the empties log and the
// progress marker.
func (s *Scheduler) SeedProcessed(blocks ...uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range blocks {
		s.processed[n] = struct{}{}
	}
}

// MarkProcessed records that a fetch attempt for the block completed
// terminally (found, confirmed empty, or fatal skip).
func (s *Scheduler) MarkProcessed(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[n] = struct{}{}
}

// IsProcessed reports set membership.
func (s *Scheduler) IsProcessed(n uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[n]
	return ok
}

// EnqueueLive pushes a live-feed height onto the priority queue unless
// it is already queued anywhere or already processed. It also advances
// the current-height watermark.
func (s *Scheduler) EnqueueLive(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > s.watermark {
		s.watermark = n
	}
	if _, ok := s.processed[n]; ok {
		return
	}
	if _, ok := s.queuedLive[n]; ok {
		return
	}
	if _, ok := s.inBackfill[n]; ok {
		return // backfill will get to it
	}
	s.priority = append(s.priority, n)
	s.queuedLive[n] = struct{}{}
}

// PopPriority removes and returns the oldest live-feed entry.
func (s *Scheduler) PopPriority() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.priority) == 0 {
		return 0, false
	}
	n := s.priority[0]
	s.priority = s.priority[1:]
	delete(s.queuedLive, n)
	return n, true
}

// PopBackfill removes and returns the smallest backfill entry.
func (s *Scheduler) PopBackfill() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.backfill) == 0 {
		return 0, false
	}
	n := s.backfill[0]
	s.backfill = s.backfill[1:]
	delete(s.inBackfill, n)
	return n, true
}

// Requeue puts a block back on the backfill queue, keeping it sorted
// and duplicate-free. Used when processing had to be abandoned before
// a terminal outcome (e.g. all credentials drained mid-block).
func (s *Scheduler) Requeue(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[n]; ok {
		return
	}
	if _, ok := s.inBackfill[n]; ok {
		return
	}
	i := sort.Search(len(s.backfill), func(i int) bool { return s.backfill[i] >= n })
	s.backfill = append(s.backfill, 0)
	copy(s.backfill[i+1:], s.backfill[i:])
	s.backfill[i] = n
	s.inBackfill[n] = struct{}{}
}

// Refill rebuilds the backfill queue: every block in
// [startBlock, lastProcessed] absent from the processed set goes to
// the front (gaps first, ascending), then the next unclaimed
// contiguous chunk past lastProcessed is appended, bounded by the
// window and capped at the live watermark. Returns how many entries
// the queue now holds.
func (s *Scheduler) Refill(lastProcessed uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[uint64]struct{}, len(s.inBackfill))
	for n := range s.inBackfill {
		merged[n] = struct{}{}
	}

	// (a) historical gaps
	for n := s.startBlock; n <= lastProcessed; n++ {
		if _, ok := s.processed[n]; ok {
			continue
		}
		if _, ok := s.queuedLive[n]; ok {
			continue
		}
		merged[n] = struct{}{}
	}

	// (b) range extension, never past the known chain height
	if s.watermark > lastProcessed {
		end := lastProcessed + uint64(s.window)
		if end > s.watermark {
			end = s.watermark
		}
		for n := lastProcessed + 1; n <= end; n++ {
			if _, ok := s.processed[n]; ok {
				continue
			}
			if _, ok := s.queuedLive[n]; ok {
				continue
			}
			merged[n] = struct{}{}
		}
	}

	s.backfill = s.backfill[:0]
	s.inBackfill = make(map[uint64]struct{}, len(merged))
	for n := range merged {
		s.backfill = append(s.backfill, n)
		s.inBackfill[n] = struct{}{}
	}
	sort.Slice(s.backfill, func(i, j int) bool { return s.backfill[i] < s.backfill[j] })
	return len(s.backfill)
}

// Watermark returns the highest live-feed height seen so far.
func (s *Scheduler) Watermark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

// SetWatermark raises the watermark, used at startup when the current
// height is known from elsewhere.
func (s *Scheduler) SetWatermark(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.watermark {
		s.watermark = n
	}
}

// PriorityLen returns the live queue depth.
func (s *Scheduler) PriorityLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.priority)
}

// BackfillLen returns the backfill queue depth.
func (s *Scheduler) BackfillLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backfill)
}

// BackfillSnapshot returns a copy of the backfill queue, for tests and
// status reporting.
func (s *Scheduler) BackfillSnapshot() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.backfill))
	copy(out, s.backfill)
	return out
}

// ProcessedCount returns the processed set size.
func (s *Scheduler) ProcessedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}
