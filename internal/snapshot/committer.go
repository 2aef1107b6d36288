// Package snapshot provides best-effort version-control snapshots of
// the dataset file.
//
// The committer consumes the store's append notifications and, after a
// debounce window, shells out to git in the data directory. It is pure
// side effect: a failed or missing git never affects store or queue
// state, so every error here is logged at debug and dropped.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/bitmapland/indexer/internal/core/domain"
)

// Committer debounces append notifications into git commits.
type Committer struct {
	dir      string // repository working directory
	file     string // dataset path relative to dir
	debounce time.Duration
	log      *slog.Logger

	notify chan struct{}
}

// New creates a committer for the dataset file at datasetPath.
func New(datasetPath string, debounce time.Duration, log *slog.Logger) *Committer {
	return &Committer{
		dir:      filepath.Dir(datasetPath),
		file:     filepath.Base(datasetPath),
		debounce: debounce,
		log:      log,
		notify:   make(chan struct{}, 1),
	}
}

// Notify is the store's append hook. Non-blocking: a pending signal is
// enough, intermediate appends coalesce into one commit.
func (c *Committer) Notify(domain.BlockRecord) {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Run consumes notifications until the context is canceled, committing
// at most once per debounce window.
func (c *Committer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.notify:
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.debounce):
		}

		c.commit(ctx)
	}
}

func (c *Committer) commit(ctx context.Context) {
	if err := c.git(ctx, "add", c.file); err != nil {
		c.log.Debug("snapshot add skipped", "error", err)
		return
	}
	msg := fmt.Sprintf("dataset snapshot %s", time.Now().UTC().Format(time.RFC3339))
	if err := c.git(ctx, "commit", "-m", msg); err != nil {
		// Commit fails routinely when nothing changed since the last
		// snapshot; best-effort either way.
		c.log.Debug("snapshot commit skipped", "error", err)
		return
	}
	c.log.Debug("dataset snapshot committed")
}

func (c *Committer) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, out)
	}
	return nil
}
