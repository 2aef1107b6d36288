// Package control wires the components together and manages the
// application lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bitmapland/indexer/internal/api"
	"github.com/bitmapland/indexer/internal/core/config"
	"github.com/bitmapland/indexer/internal/core/progress"
	"github.com/bitmapland/indexer/internal/indexing/ingest"
	"github.com/bitmapland/indexer/internal/indexing/livefeed"
	"github.com/bitmapland/indexer/internal/indexing/scheduler"
	"github.com/bitmapland/indexer/internal/infra/credential"
	"github.com/bitmapland/indexer/internal/infra/fetch"
	"github.com/bitmapland/indexer/internal/infra/store"
	"github.com/bitmapland/indexer/internal/snapshot"
)

// Indexer is the assembled application.
type Indexer struct {
	cfg       *config.Config
	log       *slog.Logger
	dataset   *store.Store
	tracker   *progress.Tracker
	sched     *scheduler.Scheduler
	rotator   *credential.Rotator
	loop      *ingest.Loop
	feed      *livefeed.Feed
	apiServer *api.Server
	committer *snapshot.Committer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewIndexer builds all components from configuration.
func NewIndexer(cfg *config.Config, log *slog.Logger) (*Indexer, error) {
	dataset, err := store.Open(cfg.Storage.DatasetFile, cfg.Ingest.DedupeEvery, log)
	if err != nil {
		return nil, fmt.Errorf("open dataset store: %w", err)
	}

	tracker, err := progress.Load(cfg.Storage.ProgressFile, cfg.Storage.EmptiesFile, cfg.Ingest.StartBlock)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	sched := scheduler.New(cfg.Ingest.StartBlock, cfg.Ingest.BackfillWindow)
	if err := seedProcessed(sched, dataset, tracker); err != nil {
		return nil, err
	}

	slots := make([]*credential.Slot, 0, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		slots = append(slots, credential.NewSlot(c.Name, c.Key, c.DailyLimit, c.MinInterval))
	}
	rotator := credential.NewRotator(slots, cfg.Ingest.SafetyBuffer)

	client := fetch.NewClient(fetch.Config{
		BaseURL:       cfg.Provider.BaseURL,
		Timeout:       cfg.Provider.Timeout,
		QuotaCooldown: cfg.Ingest.QuotaCooldown,
	}, log)

	loop := ingest.New(ingest.Config{
		RetryCeiling:   cfg.Ingest.RetryCeiling,
		RetryBase:      cfg.Ingest.RetryBase,
		RetryMax:       cfg.Ingest.RetryMax,
		QuotaCooldown:  cfg.Ingest.QuotaCooldown,
		ExhaustedSleep: cfg.Ingest.ExhaustedSleep,
		IdleInterval:   cfg.Ingest.IdleInterval,
		SlotWait:       cfg.Ingest.SlotWait,
		SnapshotEvery:  cfg.Ingest.SnapshotEvery,
		StatusEvery:    cfg.Ingest.StatusEvery,
	}, rotator, client, dataset, sched, tracker, log)

	idx := &Indexer{
		cfg:     cfg,
		log:     log,
		dataset: dataset,
		tracker: tracker,
		sched:   sched,
		rotator: rotator,
		loop:    loop,
	}

	if cfg.LiveFeed.URL != "" {
		idx.feed = livefeed.New(livefeed.Config{
			URL:            cfg.LiveFeed.URL,
			ReconnectBase:  cfg.LiveFeed.ReconnectBase,
			ReconnectLimit: cfg.LiveFeed.ReconnectLimit,
		}, sched.EnqueueLive, log)
	}

	if cfg.Snapshot.Enabled {
		idx.committer = snapshot.New(cfg.Storage.DatasetFile, cfg.Snapshot.Debounce, log)
		dataset.SetAppendHook(idx.committer.Notify)
	}

	idx.apiServer = api.NewServer(cfg.Server.Port, dataset, idx.status, log)

	return idx, nil
}

// seedProcessed rebuilds the processed set from the dataset rows and
// the empties log.
func seedProcessed(sched *scheduler.Scheduler, dataset *store.Store, tracker *progress.Tracker) error {
	stored, err := dataset.BlockNumbers()
	if err != nil {
		return fmt.Errorf("scan dataset: %w", err)
	}
	sched.SeedProcessed(stored...)

	empties, err := tracker.LoadEmpties()
	if err != nil {
		return fmt.Errorf("load empties log: %w", err)
	}
	sched.SeedProcessed(empties...)
	return nil
}

func (i *Indexer) status() api.Status {
	rec := i.tracker.Record()
	return api.Status{
		State:              string(i.loop.State()),
		LastProcessedBlock: rec.LastProcessedBlock,
		TotalProcessed:     rec.TotalProcessed,
		LiveHeight:         i.sched.Watermark(),
		PriorityQueue:      i.sched.PriorityLen(),
		BackfillQueue:      i.sched.BackfillLen(),
	}
}

// Start launches the ingestion loop, the live feed, the API server and
// the snapshot committer.
func (i *Indexer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel

	// Startup consistency check: an out-of-order dataset self-heals in
	// the background rather than blocking ingestion.
	ok, err := i.dataset.ValidateOrder()
	if err != nil {
		return fmt.Errorf("validate dataset order: %w", err)
	}
	if !ok {
		i.log.Warn("dataset out of order, scheduling sort/dedupe pass")
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			if err := i.dataset.SortAndDedupe(); err != nil {
				i.log.Error("startup sort/dedupe failed", "error", err)
			}
		}()
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := i.loop.Run(runCtx); err != nil {
			i.log.Error("ingestion loop exited", "error", err)
		}
	}()

	if i.feed != nil {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			i.feed.Run(runCtx)
		}()
	}

	if i.committer != nil {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			i.committer.Run(runCtx)
		}()
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := i.apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.log.Error("api server exited", "error", err)
		}
	}()

	rec := i.tracker.Record()
	i.log.Info("indexer started",
		"start_block", i.cfg.Ingest.StartBlock,
		"last_processed", rec.LastProcessedBlock,
		"processed_set", i.sched.ProcessedCount(),
		"credentials", len(i.rotator.Slots()),
		"port", i.cfg.Server.Port)
	return nil
}

// Stop shuts down gracefully: the loop finishes its in-flight
// operation and persists progress, the feed connection is released,
// the API server drains.
func (i *Indexer) Stop(ctx context.Context) error {
	i.loop.Stop()
	if i.cancel != nil {
		i.cancel()
	}
	if i.feed != nil {
		i.feed.Close()
	}

	apiErr := i.apiServer.Stop(ctx)

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
	return apiErr
}
