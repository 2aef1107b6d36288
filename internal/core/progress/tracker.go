// Package progress persists the ingestion position.
//
// Two small documents live next to the dataset file: the progress
// record (JSON, rewritten wholesale) and the confirmed-empty log
// (newline-delimited block numbers, append-only). Together with the
// dataset rows they rebuild the processed set after a restart without
// re-fetching blocks already confirmed empty.
package progress

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bitmapland/indexer/internal/core/domain"
)

// Tracker owns the durable ProgressRecord and the empties log.
type Tracker struct {
	mu          sync.Mutex
	path        string
	emptiesPath string
	rec         domain.ProgressRecord
}

// Load reads the progress document, creating it at the configured
// starting point on first run. startBlock is the first block of the
// scan range; a fresh record marks the block before it as processed.
func Load(path, emptiesPath string, startBlock uint64) (*Tracker, error) {
	t := &Tracker{path: path, emptiesPath: emptiesPath}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		last := uint64(0)
		if startBlock > 0 {
			last = startBlock - 1
		}
		t.rec = domain.ProgressRecord{
			LastProcessedBlock: last,
			StartTime:          time.Now().UTC(),
		}
		if err := t.snapshotLocked(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("read progress document: %w", err)
	default:
		if err := json.Unmarshal(data, &t.rec); err != nil {
			return nil, fmt.Errorf("parse progress document: %w", err)
		}
	}
	return t, nil
}

// Record returns a copy of the current progress record.
func (t *Tracker) Record() domain.ProgressRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rec
}

// Advance moves the last-processed marker forward. Monotone: an older
// block never moves it back. Only backfill successes call this; live
// entries arrive out of historical order and must not.
func (t *Tracker) Advance(block uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if block > t.rec.LastProcessedBlock {
		t.rec.LastProcessedBlock = block
	}
}

// CountProcessed increments the total regardless of queue origin.
func (t *Tracker) CountProcessed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.TotalProcessed++
}

// Snapshot persists the record wholesale: the full value is serialized
// under the lock so a concurrent Advance can never produce a torn
// document, then written to a temp file and renamed over.
func (t *Tracker) Snapshot() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(t.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), "progress-*.json")
	if err != nil {
		return fmt.Errorf("create temp progress file: %w", err)
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(append(data, '\n'))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write progress: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace progress document: %w", err)
	}
	return nil
}

// Reset force-sets the last-processed marker and persists immediately.
// Unlike Advance it may move the marker backward; the admin CLI uses it
// to trigger a rescan from an earlier block.
func (t *Tracker) Reset(block uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.LastProcessedBlock = block
	return t.snapshotLocked()
}

// AppendEmpty records a confirmed-empty block so a restart never
// re-fetches it.
func (t *Tracker) AppendEmpty(block uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.emptiesPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open empties log: %w", err)
	}
	_, err = f.WriteString(strconv.FormatUint(block, 10) + "\n")
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("append empties log: %w", err)
	}
	return nil
}

// LoadEmpties returns every confirmed-empty block number recorded so
// far. A missing log is an empty set, not an error.
func (t *Tracker) LoadEmpties() ([]uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.emptiesPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open empties log: %w", err)
	}
	defer f.Close()

	var blocks []uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		n, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad empties entry %q: %w", line, err)
		}
		blocks = append(blocks, n)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read empties log: %w", err)
	}
	return blocks, nil
}
