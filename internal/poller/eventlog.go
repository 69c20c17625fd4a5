package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/skovlund/netwatch/internal/checkpoint"
	"github.com/skovlund/netwatch/internal/metrics"
	"github.com/skovlund/netwatch/internal/model"
	"github.com/skovlund/netwatch/internal/pipeline"
)

// ErrUnsupported is returned by a Reader on platforms without an event-log
// subsystem. Feature absence, not an error condition.
var ErrUnsupported = errors.New("event log subsystem not available on this platform")

// Record is one event-log entry as reported by the subsystem.
type Record struct {
	Channel  string
	Provider string
	RecordID int64
	EventID  int
	Level    string // severity text as reported (e.g. "Information")
	Time     time.Time
	Message  string
}

// Reader queries the OS event subsystem. Implementations are per-platform;
// see reader_windows.go and reader_stub.go.
type Reader interface {
	// Query returns records from channel strictly after (afterID, afterTime),
	// capped at max, oldest first.
	Query(ctx context.Context, channel string, afterID int64, afterTime time.Time, max int) ([]Record, error)
}

// severity maps the subsystem's level text onto syslog severities.
var eventLevelSeverity = map[string]int{
	"critical":    2,
	"error":       3,
	"warning":     4,
	"information": 6,
	"verbose":     7,
}

// EventLog polls named channels of the host event-log subsystem, one cursor
// per channel. On an unsupported platform the first poll logs once and the
// poller becomes a permanent no-op.
type EventLog struct {
	reader    Reader
	buf       *pipeline.Buffer
	channels  []string
	allow     map[string]bool // lowercased level allow-list; empty = all
	maxEvents int
	interval  time.Duration
	cursors   map[string]checkpoint.ChannelCursor
	hostname  string
}

// NewEventLog creates the poller. cursors carries the durably committed
// per-channel positions (may be empty).
func NewEventLog(reader Reader, buf *pipeline.Buffer, channels, levels []string, maxEvents int, interval time.Duration, cursors map[string]checkpoint.ChannelCursor) *EventLog {
	allow := make(map[string]bool, len(levels))
	for _, l := range levels {
		allow[strings.ToLower(l)] = true
	}
	host, _ := os.Hostname()
	if cursors == nil {
		cursors = make(map[string]checkpoint.ChannelCursor)
	}
	return &EventLog{
		reader:    reader,
		buf:       buf,
		channels:  channels,
		allow:     allow,
		maxEvents: maxEvents,
		interval:  interval,
		cursors:   cursors,
		hostname:  host,
	}
}

// Run polls immediately, then on every tick, until ctx is cancelled.
func (p *EventLog) Run(ctx context.Context) {
	if !p.poll(ctx) {
		return // subsystem absent
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll queries every channel once. Returns false when the subsystem is
// absent and polling should stop for good.
func (p *EventLog) poll(ctx context.Context) bool {
	for _, channel := range p.channels {
		cur := p.cursors[channel]
		records, err := p.reader.Query(ctx, channel, cur.LastRecordId, cur.LastTimeUtc, p.maxEvents)
		if errors.Is(err, ErrUnsupported) {
			slog.Info("event log polling disabled", "reason", err)
			return false
		}
		if err != nil {
			slog.Warn("event log poll failed", "channel", channel, "error", err)
			continue
		}

		maxSeen := cur
		for _, rec := range records {
			if rec.RecordID <= cur.LastRecordId {
				continue
			}
			// Filtered records still advance the cursor; otherwise every
			// poll would re-query and re-filter the same records.
			if rec.RecordID > maxSeen.LastRecordId {
				maxSeen = checkpoint.ChannelCursor{LastRecordId: rec.RecordID, LastTimeUtc: rec.Time.UTC()}
			}
			if len(p.allow) > 0 && !p.allow[strings.ToLower(rec.Level)] {
				continue
			}
			p.buf.AddMarked(p.normalize(rec), pipeline.Mark{
				Channel:  channel,
				RecordID: rec.RecordID,
				EventAt:  rec.Time,
			})
			metrics.EventsIngested.WithLabelValues(model.SourceWifiScan).Inc()
		}
		p.cursors[channel] = maxSeen
	}
	return true
}

// normalize shapes a record into the common envelope. The raw message keeps
// the full structured payload so observations stay re-derivable.
func (p *EventLog) normalize(rec Record) model.NormalizedEvent {
	eventAt := rec.Time.UTC()
	ev := model.NormalizedEvent{
		ReceivedAt: time.Now().UTC(),
		EventAt:    &eventAt,
		SourceHost: p.hostname,
		AppName:    rec.Provider,
		Message:    rec.Message,
		Source:     model.SourceWifiScan,
	}
	if sev, ok := eventLevelSeverity[strings.ToLower(rec.Level)]; ok {
		ev.Severity = &sev
	}
	raw, err := json.Marshal(map[string]any{
		"channel":  rec.Channel,
		"provider": rec.Provider,
		"id":       rec.EventID,
		"level":    rec.Level,
		"message":  rec.Message,
	})
	if err == nil {
		ev.RawMessage = string(raw)
	} else {
		ev.RawMessage = rec.Message
	}
	return ev
}
