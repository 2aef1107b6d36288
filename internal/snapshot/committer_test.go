package snapshot

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/bitmapland/indexer/internal/core/domain"
)

func TestNotify_NeverBlocks(t *testing.T) {
	c := New("/tmp/data/bitmaps.csv", time.Second, slog.Default())

	// No Run loop draining; repeated notifications must coalesce
	// instead of blocking the ingestion path.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Notify(domain.BlockRecord{BlockNumber: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := New(t.TempDir()+"/bitmaps.csv", 10*time.Millisecond, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.Notify(domain.BlockRecord{BlockNumber: 840000})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
