// Package poller runs the incremental poll loops: the remote router log
// export and the host event-log subsystem. Pollers decode into normalized
// events, attach checkpoint candidates, and append to their source buffer;
// cursors are persisted elsewhere, only after a durable load.
package poller

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/skovlund/netwatch/internal/decode"
	"github.com/skovlund/netwatch/internal/metrics"
	"github.com/skovlund/netwatch/internal/model"
	"github.com/skovlund/netwatch/internal/pipeline"
)

// Fetcher retrieves the router's current log content.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Router polls the router log export on a fixed interval and enqueues
// events newer than the cursor. Dedup is by last event timestamp: events at
// or before the cursor are discarded. Best effort under clock skew or
// out-of-order delivery; the export carries no sequence numbers.
type Router struct {
	fetch    Fetcher
	dec      *decode.Decoder
	buf      *pipeline.Buffer
	interval time.Duration
	cursor   time.Time // in-memory; seeded from the durable checkpoint
}

// NewRouter creates a router poller. cursor is the last durably committed
// event time (zero on first run).
func NewRouter(fetch Fetcher, dec *decode.Decoder, buf *pipeline.Buffer, cursor time.Time, interval time.Duration) *Router {
	return &Router{
		fetch:    fetch,
		dec:      dec,
		buf:      buf,
		interval: interval,
		cursor:   cursor,
	}
}

// Run polls immediately, then on every tick, until ctx is cancelled. Poll
// failures are logged and retried at the normal interval.
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Router) poll(ctx context.Context) {
	content, err := r.fetch.Fetch(ctx)
	if err != nil {
		slog.Warn("router poll failed", "error", err)
		return
	}

	// Dedup against the cursor as of poll start; a poll's own events may
	// arrive out of chronological order within the fetched content.
	start := r.cursor
	maxSeen := r.cursor
	enqueued := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		ev := r.dec.Router(line)
		if ev.EventAt == nil {
			// No parseable event time, so no cursor to dedup against;
			// such lines would re-deliver on every poll.
			slog.Debug("router line skipped, no event time", "line", line)
			continue
		}
		if !ev.EventAt.After(start) {
			continue
		}
		r.buf.AddMarked(ev, pipeline.Mark{EventAt: *ev.EventAt})
		metrics.EventsIngested.WithLabelValues(model.SourceRouter).Inc()
		enqueued++
		if ev.EventAt.After(maxSeen) {
			maxSeen = *ev.EventAt
		}
	}
	r.cursor = maxSeen
	if enqueued > 0 {
		slog.Debug("router poll complete", "events", enqueued, "cursor", r.cursor)
	}
}
