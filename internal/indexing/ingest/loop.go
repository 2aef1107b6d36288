// Package ingest runs the ingestion loop: a single logical worker that
// drains the priority and backfill queues, fetches one block at a time
// through the credential rotator, writes results to the dataset store
// and applies the retry/backoff policy.
//
// Processing is strictly sequential. One in-flight fetch at a time
// keeps credential accounting a matter of simple bookkeeping; the only
// concurrent actor is the live feed, which pushes into the scheduler.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitmapland/indexer/internal/core/domain"
	"github.com/bitmapland/indexer/internal/indexing/metrics"
	"github.com/bitmapland/indexer/internal/indexing/scheduler"
	"github.com/bitmapland/indexer/internal/infra/credential"
	"github.com/bitmapland/indexer/internal/infra/fetch"
)

// State is the loop's current phase, exposed for status reporting.
type State string

const (
	StateIdle             State = "idle"
	StateDrainingPriority State = "draining_priority"
	StateDrainingBackfill State = "draining_backfill"
	StateCoolingDown      State = "cooling_down"
	StateExhausted        State = "exhausted"
)

// Fetcher issues one lookup per block number.
type Fetcher interface {
	Fetch(ctx context.Context, blockNumber uint64, slot *credential.Slot) fetch.Outcome
}

// Dataset is the write side of the store.
type Dataset interface {
	Append(rec domain.BlockRecord) error
}

// Tracker is the durable progress document plus the empties log.
type Tracker interface {
	Record() domain.ProgressRecord
	Advance(block uint64)
	CountProcessed()
	Snapshot() error
	AppendEmpty(block uint64) error
}

// Credentials selects and charges API credentials.
type Credentials interface {
	Next() (*credential.Slot, bool)
	RecordUse(*credential.Slot)
	Exhausted() bool
	Slots() []*credential.Slot
}

// Config controls retry, cooldown and ticker timing.
type Config struct {
	RetryCeiling   int
	RetryBase      time.Duration
	RetryMax       time.Duration
	QuotaCooldown  time.Duration
	ExhaustedSleep time.Duration
	IdleInterval   time.Duration
	SlotWait       time.Duration
	SnapshotEvery  time.Duration
	StatusEvery    time.Duration
}

// Loop is the orchestrator.
type Loop struct {
	cfg      Config
	creds    Credentials
	fetcher  Fetcher
	dataset  Dataset
	sched    *scheduler.Scheduler
	progress Tracker
	log      *slog.Logger

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	state State
}

// New creates the ingestion loop.
func New(
	cfg Config,
	creds Credentials,
	fetcher Fetcher,
	dataset Dataset,
	sched *scheduler.Scheduler,
	progress Tracker,
	log *slog.Logger,
) *Loop {
	return &Loop{
		cfg:      cfg,
		creds:    creds,
		fetcher:  fetcher,
		dataset:  dataset,
		sched:    sched,
		progress: progress,
		log:      log,
		stop:     make(chan struct{}),
		state:    StateIdle,
	}
}

// State returns the loop's current phase.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run drives the loop until the context is canceled or Stop is called.
// On shutdown it finishes the in-flight operation and persists the
// progress record synchronously.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("ingestion loop already running")
	}
	defer l.running.Store(false)

	snapshotTicker := time.NewTicker(l.cfg.SnapshotEvery)
	defer snapshotTicker.Stop()
	statusTicker := time.NewTicker(l.cfg.StatusEvery)
	defer statusTicker.Stop()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		case <-l.stop:
			return l.shutdown()
		case <-snapshotTicker.C:
			if err := l.progress.Snapshot(); err != nil {
				l.log.Warn("progress snapshot failed", "error", err)
			}
		case <-statusTicker.C:
			l.reportStatus()
		case <-timer.C:
			timer.Reset(l.cycle(ctx))
		}
	}
}

// Stop signals the loop to shut down after its in-flight operation.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Loop) shutdown() error {
	if err := l.progress.Snapshot(); err != nil {
		return fmt.Errorf("final progress snapshot: %w", err)
	}
	rec := l.progress.Record()
	l.log.Info("ingestion loop stopped",
		"last_processed", rec.LastProcessedBlock,
		"total_processed", rec.TotalProcessed)
	return nil
}

// cycle performs one scheduling decision and returns the delay before
// the next one. Priority entries drain before backfill; an empty
// backfill queue triggers a refill via the gap detector.
func (l *Loop) cycle(ctx context.Context) time.Duration {
	if l.creds.Exhausted() {
		l.setState(StateCoolingDown)
		l.log.Info("combined daily quota reached, cooling down", "sleep", l.cfg.ExhaustedSleep)
		return l.cfg.ExhaustedSleep
	}

	if n, ok := l.sched.PopPriority(); ok {
		l.setState(StateDrainingPriority)
		l.processBlock(ctx, n, false)
		return 0
	}

	if n, ok := l.sched.PopBackfill(); ok {
		l.setState(StateDrainingBackfill)
		l.processBlock(ctx, n, true)
		return 0
	}

	l.setState(StateIdle)
	if queued := l.sched.Refill(l.progress.Record().LastProcessedBlock); queued > 0 {
		return 0
	}
	return l.cfg.IdleInterval
}

// processBlock fetches one block to a terminal outcome, retrying
// transient failures with exponential backoff. fromBackfill selects
// whether a terminal outcome advances the progress marker; priority
// entries arrive out of historical order and never do.
func (l *Loop) processBlock(ctx context.Context, n uint64, fromBackfill bool) {
	attempts := 0

	for {
		slot, ok := l.creds.Next()
		if !ok {
			l.setState(StateExhausted)
			if l.creds.Exhausted() || !l.sleepCtx(ctx, l.cfg.SlotWait) {
				l.requeue(n, fromBackfill)
				return
			}
			continue
		}

		// Shutdown waits for the in-flight request; the client's own
		// network timeout bounds it.
		out := l.fetcher.Fetch(context.WithoutCancel(ctx), n, slot)
		l.creds.RecordUse(slot)
		metrics.FetchesTotal.WithLabelValues(slot.Name, out.Kind.String()).Inc()

		switch out.Kind {
		case fetch.KindFound:
			rec := domain.BlockRecord{
				BlockNumber:   n,
				InscriptionID: out.InscriptionID,
				Sat:           out.Sat,
			}
			if err := l.dataset.Append(rec); err != nil {
				l.log.Error("dataset append failed", "block", n, "error", err)
				l.requeue(n, fromBackfill)
				return
			}
			l.finish(n, fromBackfill, "found")
			l.log.Info("bitmap found", "block", n, "inscription", out.InscriptionID)
			return

		case fetch.KindNotFound:
			// Confirmed empty is terminal, not a failure.
			if err := l.progress.AppendEmpty(n); err != nil {
				l.log.Warn("empties log append failed", "block", n, "error", err)
			}
			l.finish(n, fromBackfill, "empty")
			l.log.Debug("confirmed empty", "block", n)
			return

		case fetch.KindFatal:
			// Marked processed without a store row so a broken
			// credential/block pair never loops forever.
			l.log.Error("credential rejected, skipping block",
				"block", n, "credential", slot.Name, "error", out.Err)
			l.finish(n, fromBackfill, "fatal")
			return

		case fetch.KindQuotaHit:
			cooldown := out.Cooldown
			if cooldown <= 0 {
				cooldown = l.cfg.QuotaCooldown
			}
			// No retry attempt consumed: quota signals are retried
			// indefinitely after the long cooldown.
			l.log.Warn("provider rate limit hit",
				"block", n, "credential", slot.Name, "cooldown", cooldown)
			if !l.sleepCtx(ctx, cooldown) {
				l.requeue(n, fromBackfill)
				return
			}

		case fetch.KindRetryable:
			attempts++
			if attempts > l.cfg.RetryCeiling {
				// Deferred, not abandoned: the block stays out of the
				// processed set so a later refill re-offers it.
				metrics.DeferredTotal.Inc()
				l.log.Warn("retry ceiling exceeded, deferring block",
					"block", n, "attempts", attempts, "error", out.Err)
				return
			}
			delay := Backoff(attempts, l.cfg.RetryBase, l.cfg.RetryMax)
			metrics.RetriesTotal.Inc()
			l.log.Warn("transient failure, retrying",
				"block", n, "attempt", attempts, "delay", delay, "error", out.Err)
			if !l.sleepCtx(ctx, delay) {
				l.requeue(n, fromBackfill)
				return
			}
		}
	}
}

// finish records a terminal outcome. Any terminal outcome on a
// backfill block advances the marker; leaving it behind would stall
// the range extension window forever.
func (l *Loop) finish(n uint64, fromBackfill bool, outcome string) {
	l.sched.MarkProcessed(n)
	l.progress.CountProcessed()
	if fromBackfill {
		l.progress.Advance(n)
		metrics.LastProcessedBlock.Set(float64(l.progress.Record().LastProcessedBlock))
	}
	metrics.BlocksProcessed.WithLabelValues(outcome).Inc()
}

// requeue returns an unfinished block to the queue it came from.
func (l *Loop) requeue(n uint64, fromBackfill bool) {
	if fromBackfill {
		l.sched.Requeue(n)
	} else {
		l.sched.EnqueueLive(n)
	}
}

func (l *Loop) sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.stop:
		return false
	case <-time.After(d):
		return true
	}
}

func (l *Loop) reportStatus() {
	rec := l.progress.Record()
	metrics.QueueDepth.WithLabelValues("priority").Set(float64(l.sched.PriorityLen()))
	metrics.QueueDepth.WithLabelValues("backfill").Set(float64(l.sched.BackfillLen()))
	metrics.LiveHeight.Set(float64(l.sched.Watermark()))

	used := 0
	for _, s := range l.creds.Slots() {
		metrics.CredentialRequests.WithLabelValues(s.Name).Set(float64(s.RequestsToday()))
		used += s.RequestsToday()
	}

	l.log.Info("ingestion status",
		"state", l.State(),
		"last_processed", rec.LastProcessedBlock,
		"total_processed", rec.TotalProcessed,
		"priority_queue", l.sched.PriorityLen(),
		"backfill_queue", l.sched.BackfillLen(),
		"live_height", l.sched.Watermark(),
		"requests_today", used)
}
