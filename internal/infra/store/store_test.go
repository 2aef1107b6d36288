package store

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitmapland/indexer/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bitmaps.csv")
	s, err := Open(path, 1000, slog.Default())
	require.NoError(t, err)
	return s
}

func rec(block uint64, id string) domain.BlockRecord {
	return domain.BlockRecord{BlockNumber: block, InscriptionID: id, Sat: domain.SatUnknown}
}

func TestOpen_CreatesFileWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitmaps.csv")
	_, err := Open(path, 50, slog.Default())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "block_number,inscription_id,sat\n", string(data))
}

func TestAppendAndLookup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(rec(840000, "aaai0")))
	require.NoError(t, s.Append(domain.BlockRecord{BlockNumber: 840001, InscriptionID: "bbbi0", Sat: 77}))

	got, err := s.Lookup(840001)
	require.NoError(t, err)
	require.Equal(t, "bbbi0", got.InscriptionID)
	require.Equal(t, int64(77), got.Sat)

	_, err = s.Lookup(999999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSortAndDedupe_OrdersAndKeepsFirst(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(rec(840002, "ccci0")))
	require.NoError(t, s.Append(rec(840000, "aaai0")))
	require.NoError(t, s.Append(rec(840002, "dupi0"))) // duplicate, appended later
	require.NoError(t, s.Append(rec(840001, "bbbi0")))

	ok, err := s.ValidateOrder()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SortAndDedupe())

	ok, err = s.ValidateOrder()
	require.NoError(t, err)
	require.True(t, ok)

	nums, err := s.BlockNumbers()
	require.NoError(t, err)
	require.Equal(t, []uint64{840000, 840001, 840002}, nums)

	// First occurrence retained for the duplicated block.
	got, err := s.Lookup(840002)
	require.NoError(t, err)
	require.Equal(t, "ccci0", got.InscriptionID)
}

func TestAppend_IdempotentAfterDedupe(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(rec(840000, "aaai0")))
	require.NoError(t, s.Append(rec(840000, "aaai0")))
	require.NoError(t, s.SortAndDedupe())

	count, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestAppend_TriggersDedupeAtThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitmaps.csv")
	s, err := Open(path, 3, slog.Default())
	require.NoError(t, err)

	require.NoError(t, s.Append(rec(840002, "ci0")))
	require.NoError(t, s.Append(rec(840000, "ai0")))
	ok, err := s.ValidateOrder()
	require.NoError(t, err)
	require.False(t, ok)

	// Third append crosses the threshold and runs the pass.
	require.NoError(t, s.Append(rec(840001, "bi0")))
	ok, err = s.ValidateOrder()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEnrichSat_AdditiveOnly(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(rec(840000, "aaai0")))
	require.NoError(t, s.Append(domain.BlockRecord{BlockNumber: 840001, InscriptionID: "bbbi0", Sat: 5}))

	require.NoError(t, s.EnrichSat(840000, 123))
	got, err := s.Lookup(840000)
	require.NoError(t, err)
	require.Equal(t, int64(123), got.Sat)

	// Existing sat is never overwritten.
	require.NoError(t, s.EnrichSat(840001, 999))
	got, err = s.Lookup(840001)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Sat)
}

func TestAppendHook_Fires(t *testing.T) {
	s := newTestStore(t)
	var seen []uint64
	s.SetAppendHook(func(r domain.BlockRecord) {
		seen = append(seen, r.BlockNumber)
	})

	require.NoError(t, s.Append(rec(840000, "aaai0")))
	require.NoError(t, s.Append(rec(840001, "bbbi0")))
	require.Equal(t, []uint64{840000, 840001}, seen)
}

func TestSortAndDedupe_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bitmaps.csv")
	s, err := Open(path, 1000, slog.Default())
	require.NoError(t, err)
	require.NoError(t, s.Append(rec(840001, "bi0")))
	require.NoError(t, s.Append(rec(840000, "ai0")))
	require.NoError(t, s.SortAndDedupe())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasPrefix(e.Name(), "bitmaps-"), "temp file left behind: %s", e.Name())
	}
}
