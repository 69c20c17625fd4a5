// Package pipeline buffers decoded events per source label and drains them
// to the destination store on elapsed-time or batch-size triggers. Flushes
// of different labels run independently; flushes of one label are
// serialized by construction (one flush loop per buffer).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/skovlund/netwatch/internal/extract"
	"github.com/skovlund/netwatch/internal/merge"
	"github.com/skovlund/netwatch/internal/metrics"
	"github.com/skovlund/netwatch/internal/model"
)

const (
	tickInterval  = time.Second
	flushAttempts = 3
	backoffBase   = time.Second
	backoffCap    = 8 * time.Second
)

// Destination is the store surface a flush needs. *store.Postgres satisfies
// it; tests substitute a fake.
type Destination interface {
	// Stage writes a batch to a staging export file and returns its path.
	Stage(label string, events []model.NormalizedEvent) (string, error)
	// EnsurePartition idempotently creates the partition covering at.
	EnsurePartition(ctx context.Context, at time.Time) error
	// BulkLoadEvents loads a staged export into the events table.
	BulkLoadEvents(ctx context.Context, stagedPath string) (int64, error)
	InsertObservations(ctx context.Context, obs []model.DeviceObservation) error
	MergeProfiles(ctx context.Context, updates []merge.Update) error
}

// CommitFunc persists a source's checkpoint from the marks of a durably
// loaded batch. Called only after the load succeeded.
type CommitFunc func(marks []Mark) error

// Scheduler drives the flush loop for one source label.
type Scheduler struct {
	buf      *Buffer
	dest     Destination
	commit   CommitFunc // nil for listener-fed buffers
	interval time.Duration
	minBatch int
	tick     time.Duration
	backoff  time.Duration
	now      func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCommit registers the checkpoint commit hook for a polled source.
func WithCommit(fn CommitFunc) Option {
	return func(s *Scheduler) { s.commit = fn }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTick overrides the trigger-check cadence, for tests.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

// WithRetryDelay overrides the initial retry backoff, for tests.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.backoff = d }
}

// NewScheduler creates a flush loop for buf. Call Run to start it.
func NewScheduler(buf *Buffer, dest Destination, interval time.Duration, minBatch int, opts ...Option) *Scheduler {
	s := &Scheduler{
		buf:      buf,
		dest:     dest,
		interval: interval,
		minBatch: minBatch,
		tick:     tickInterval,
		backoff:  backoffBase,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until ctx is cancelled, flushing when the buffer is old enough
// or big enough. On cancellation it performs one final flush of anything
// still buffered, then returns.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.buf.Len() > 0 {
				s.flush(context.Background())
			}
			return
		case <-ticker.C:
			metrics.BufferDepth.WithLabelValues(s.buf.Label()).Set(float64(s.buf.Len()))
			if s.shouldFlush() {
				s.flush(ctx)
			}
		}
	}
}

func (s *Scheduler) shouldFlush() bool {
	n := s.buf.Len()
	if n == 0 {
		return false
	}
	return n >= s.minBatch || s.buf.Age() >= s.interval
}

// flush drains the buffer once. The batch is dropped after exhausted
// retries; the checkpoint then stays put so a restart re-polls the range.
func (s *Scheduler) flush(ctx context.Context) {
	entries := s.buf.Snapshot()
	if len(entries) == 0 {
		return
	}
	label := s.buf.Label()

	events := make([]model.NormalizedEvent, len(entries))
	for i, e := range entries {
		events[i] = e.Event
	}

	var loaded int64
	err := s.withRetries(ctx, func() error {
		var err error
		loaded, err = s.loadBatch(ctx, label, events)
		return err
	})
	if err != nil {
		slog.Error("batch dropped after exhausted retries",
			"source", label, "events", len(events), "error", err)
		metrics.BatchesDropped.WithLabelValues(label).Inc()
		return
	}

	metrics.BatchesFlushed.WithLabelValues(label).Inc()
	slog.Debug("batch flushed", "source", label, "events", loaded)

	if label == model.SourceSyslog {
		s.mergeObservations(ctx, events)
	}

	if s.commit != nil {
		marks := make([]Mark, 0, len(entries))
		for _, e := range entries {
			if !e.Mark.IsZero() {
				marks = append(marks, e.Mark)
			}
		}
		if len(marks) > 0 {
			if err := s.commit(marks); err != nil {
				slog.Error("checkpoint write failed", "source", label, "error", err)
			}
		}
	}
}

// loadBatch is one flush attempt: stage, ensure partition, bulk load.
// A partition-ensure failure is a flush failure for the batch.
func (s *Scheduler) loadBatch(ctx context.Context, label string, events []model.NormalizedEvent) (int64, error) {
	path, err := s.dest.Stage(label, events)
	if err != nil {
		return 0, fmt.Errorf("stage: %w", err)
	}
	defer os.Remove(path)

	if err := s.dest.EnsurePartition(ctx, s.now().UTC()); err != nil {
		return 0, fmt.Errorf("ensure partition: %w", err)
	}
	n, err := s.dest.BulkLoadEvents(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("bulk load: %w", err)
	}
	return n, nil
}

// mergeObservations derives device observations from a loaded syslog batch
// and applies them. The events are already durable, so a failure here is
// logged rather than failing the flush; the observations are re-derivable
// from the stored raw messages.
func (s *Scheduler) mergeObservations(ctx context.Context, events []model.NormalizedEvent) {
	var obs []model.DeviceObservation
	for _, ev := range events {
		obs = append(obs, extract.Observations(ev)...)
	}
	if len(obs) == 0 {
		return
	}

	if err := s.dest.InsertObservations(ctx, obs); err != nil {
		slog.Error("observation insert failed", "count", len(obs), "error", err)
		return
	}
	updates := merge.Batch(obs)
	if err := s.dest.MergeProfiles(ctx, updates); err != nil {
		slog.Error("profile merge failed", "profiles", len(updates), "error", err)
		return
	}
	metrics.ProfilesMerged.Add(float64(len(updates)))
}

// withRetries runs fn up to flushAttempts times with capped exponential
// backoff (1s, 2s, 4s ... capped).
func (s *Scheduler) withRetries(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := s.backoff
	for attempt := 1; attempt <= flushAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		metrics.FlushFailures.WithLabelValues(s.buf.Label()).Inc()
		if attempt == flushAttempts {
			break
		}
		slog.Warn("flush attempt failed, retrying",
			"source", s.buf.Label(), "attempt", attempt, "error", lastErr)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return lastErr
		case <-t.C:
		}
		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}
	return lastErr
}
