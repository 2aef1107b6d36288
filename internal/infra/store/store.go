// Package store implements the append-only bitmap dataset file.
//
// The file is newline-delimited CSV with a header row
// (block_number,inscription_id,sat). Normal operation only appends;
// a periodic sort/dedupe pass rewrites the file atomically and
// restores the strictly-increasing unique block number invariant.
// The store is the sole durable source of truth and is read by the
// query layer through Lookup/Range/Tail/Search.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/bitmapland/indexer/internal/core/domain"
)

const header = "block_number,inscription_id,sat"

// ErrNotFound is returned when a block has no stored record.
var ErrNotFound = errors.New("record not found")

// Store is the file-backed dataset. Single-writer: all mutation goes
// through one ingestion loop; the mutex only guards against the read
// API and the async dedupe pass.
type Store struct {
	mu           sync.Mutex
	path         string
	dedupeEvery  int
	appendsSince int
	appendHook   func(domain.BlockRecord)
	log          *slog.Logger
}

// Open creates the store, creating the dataset file with its header
// row when missing.
func Open(path string, dedupeEvery int, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte(header+"\n"), 0o644); err != nil {
			return nil, fmt.Errorf("create dataset file: %w", err)
		}
	}
	return &Store{
		path:        path,
		dedupeEvery: dedupeEvery,
		log:         log,
	}, nil
}

// SetAppendHook registers a fire-and-forget notification invoked after
// each successful append. Hook failures must never affect store state;
// the hook itself is expected to be non-blocking.
func (s *Store) SetAppendHook(fn func(domain.BlockRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendHook = fn
}

// Append writes one record to the end of the file. Prior lines are
// never rewritten here; ordering is restored by the periodic
// sort/dedupe pass.
func (s *Store) Append(rec domain.BlockRecord) error {
	s.mu.Lock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("open dataset: %w", err)
	}
	_, err = f.WriteString(formatRow(rec) + "\n")
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("append record: %w", err)
	}

	s.appendsSince++
	due := s.appendsSince >= s.dedupeEvery
	hook := s.appendHook
	s.mu.Unlock()

	if hook != nil {
		hook(rec)
	}
	if due {
		if err := s.SortAndDedupe(); err != nil {
			// Self-healing pass; an error here never fails the append.
			s.log.Warn("sort/dedupe pass failed", "error", err)
		}
	}
	return nil
}

// SortAndDedupe reads the full store, sorts by block number ascending,
// keeps the first occurrence of each block number and rewrites the
// file atomically (write to temp, rename over). A partial write never
// leaves a torn file visible to readers.
func (s *Store) SortAndDedupe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].BlockNumber < records[j].BlockNumber
	})

	deduped := records[:0]
	var prev uint64
	for i, rec := range records {
		if i > 0 && rec.BlockNumber == prev {
			continue // first occurrence retained
		}
		deduped = append(deduped, rec)
		prev = rec.BlockNumber
	}

	if err := s.rewrite(deduped); err != nil {
		return err
	}
	s.appendsSince = 0
	return nil
}

// ValidateOrder scans the file once and reports whether block numbers
// are strictly increasing with no duplicates. Callers schedule
// SortAndDedupe asynchronously on a violation instead of blocking.
func (s *Store) ValidateOrder() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return false, err
	}
	for i := 1; i < len(records); i++ {
		if records[i].BlockNumber <= records[i-1].BlockNumber {
			return false, nil
		}
	}
	return true, nil
}

// EnrichSat fills in the optional sat attribute of an existing record.
// Additive only: a record that already has a sat is left untouched.
func (s *Store) EnrichSat(blockNumber uint64, sat int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return err
	}
	changed := false
	for i := range records {
		if records[i].BlockNumber == blockNumber && !records[i].HasSat() {
			records[i].Sat = sat
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}
	return s.rewrite(records)
}

// BlockNumbers returns every stored block number, used to rebuild the
// processed set at startup.
func (s *Store) BlockNumbers() ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	nums := make([]uint64, len(records))
	for i, rec := range records {
		nums[i] = rec.BlockNumber
	}
	return nums, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	nums, err := s.BlockNumbers()
	if err != nil {
		return 0, err
	}
	return len(nums), nil
}

// readAll parses every row. Callers hold the lock.
func (s *Store) readAll() ([]domain.BlockRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	var records []domain.BlockRecord
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// rewrite writes the full record set to a temp file in the same
// directory and renames it over the dataset. Callers hold the lock.
func (s *Store) rewrite(records []domain.BlockRecord) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "bitmaps-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write([]string{"block_number", "inscription_id", "sat"})
	for _, rec := range records {
		if writeErr != nil {
			break
		}
		writeErr = w.Write(recordFields(rec))
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	if cerr := tmp.Close(); writeErr == nil {
		writeErr = cerr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write temp dataset: %w", writeErr)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace dataset: %w", err)
	}
	return nil
}

func recordFields(rec domain.BlockRecord) []string {
	sat := ""
	if rec.HasSat() {
		sat = strconv.FormatInt(rec.Sat, 10)
	}
	return []string{
		strconv.FormatUint(rec.BlockNumber, 10),
		rec.InscriptionID,
		sat,
	}
}

func formatRow(rec domain.BlockRecord) string {
	fields := recordFields(rec)
	return fields[0] + "," + fields[1] + "," + fields[2]
}

func parseRow(row []string) (domain.BlockRecord, error) {
	if len(row) < 2 {
		return domain.BlockRecord{}, fmt.Errorf("short row")
	}
	block, err := strconv.ParseUint(row[0], 10, 64)
	if err != nil {
		return domain.BlockRecord{}, fmt.Errorf("bad block number %q: %w", row[0], err)
	}
	rec := domain.BlockRecord{
		BlockNumber:   block,
		InscriptionID: row[1],
		Sat:           domain.SatUnknown,
	}
	if len(row) > 2 && row[2] != "" {
		sat, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return domain.BlockRecord{}, fmt.Errorf("bad sat %q: %w", row[2], err)
		}
		rec.Sat = sat
	}
	return rec, nil
}
