package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefill_FreshRange(t *testing.T) {
	// Empty store, startBlock 840000, current height 840003.
	s := New(840000, 200)
	s.SetWatermark(840003)

	n := s.Refill(839999)
	require.Equal(t, 4, n)
	require.Equal(t, []uint64{840000, 840001, 840002, 840003}, s.BackfillSnapshot())
}

func TestRefill_ExcludesProcessedIncludingEmpties(t *testing.T) {
	// 840000 and 840002 have store rows; 840001 is confirmed-empty so
	// it only exists in the processed set.
	s := New(840000, 200)
	s.SeedProcessed(840000, 840001, 840002)
	s.SetWatermark(840003)

	s.Refill(840002)
	require.Equal(t, []uint64{840003}, s.BackfillSnapshot())
}

func TestRefill_GapsExactlyOnceAscending(t *testing.T) {
	s := New(840000, 200)
	s.SeedProcessed(840000, 840002, 840005)
	s.SetWatermark(840005)

	// Refill twice; gaps must appear exactly once, ascending.
	s.Refill(840005)
	s.Refill(840005)
	require.Equal(t, []uint64{840001, 840003, 840004}, s.BackfillSnapshot())
}

func TestRefill_WindowBoundsExtension(t *testing.T) {
	s := New(840000, 3)
	s.SeedProcessed(840000, 840001)
	s.SetWatermark(841000)

	s.Refill(840001)
	require.Equal(t, []uint64{840002, 840003, 840004}, s.BackfillSnapshot())
}

func TestRefill_NoExtensionWithoutWatermark(t *testing.T) {
	// Without a known chain height we never scan past the progress
	// marker; blocks past the tip would be wrongly confirmed empty.
	s := New(840000, 200)
	s.Refill(839999)
	require.Equal(t, 0, s.BackfillLen())
}

func TestPopBackfill_SmallestFirst(t *testing.T) {
	s := New(840000, 200)
	s.SetWatermark(840002)
	s.Refill(839999)

	n, ok := s.PopBackfill()
	require.True(t, ok)
	require.Equal(t, uint64(840000), n)
	n, ok = s.PopBackfill()
	require.True(t, ok)
	require.Equal(t, uint64(840001), n)
}

func TestEnqueueLive_DedupAndWatermark(t *testing.T) {
	s := New(840000, 200)

	s.EnqueueLive(841000)
	s.EnqueueLive(841000) // duplicate ignored
	require.Equal(t, 1, s.PriorityLen())
	require.Equal(t, uint64(841000), s.Watermark())

	// Already-processed heights are never enqueued, but still raise
	// the watermark.
	s.MarkProcessed(841001)
	s.EnqueueLive(841001)
	require.Equal(t, 1, s.PriorityLen())
	require.Equal(t, uint64(841001), s.Watermark())
}

func TestEnqueueLive_SkipsBlocksAlreadyInBackfill(t *testing.T) {
	s := New(840000, 200)
	s.SetWatermark(840001)
	s.Refill(839999) // queues 840000, 840001

	s.EnqueueLive(840001)
	require.Equal(t, 0, s.PriorityLen())
}

func TestPopPriority_FIFO(t *testing.T) {
	s := New(840000, 200)
	s.EnqueueLive(841002)
	s.EnqueueLive(841001)

	n, ok := s.PopPriority()
	require.True(t, ok)
	require.Equal(t, uint64(841002), n)
	n, ok = s.PopPriority()
	require.True(t, ok)
	require.Equal(t, uint64(841001), n)
	_, ok = s.PopPriority()
	require.False(t, ok)
}

func TestRequeue_KeepsOrderNoDuplicates(t *testing.T) {
	s := New(840000, 200)
	s.SetWatermark(840003)
	s.Refill(839999)

	n, ok := s.PopBackfill()
	require.True(t, ok)
	require.Equal(t, uint64(840000), n)

	s.Requeue(n)
	s.Requeue(n)
	require.Equal(t, []uint64{840000, 840001, 840002, 840003}, s.BackfillSnapshot())

	// Processed blocks are never requeued.
	popped, _ := s.PopBackfill()
	require.Equal(t, uint64(840000), popped)
	s.MarkProcessed(popped)
	s.Requeue(popped)
	require.Equal(t, []uint64{840001, 840002, 840003}, s.BackfillSnapshot())
}

func TestDeferredBlockReofferedByRefill(t *testing.T) {
	// A block whose retries were exhausted is not processed; a later
	// refill over the covered range re-offers it.
	s := New(840000, 200)
	s.SeedProcessed(840000, 840001, 840002, 840003, 840004, 840006)
	s.SetWatermark(840006)

	s.Refill(840006)
	require.Equal(t, []uint64{840005}, s.BackfillSnapshot())
}
