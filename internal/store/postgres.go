// Package store is the PostgreSQL destination adapter: schema bootstrap,
// monthly partition management, staged bulk loading, and device profile
// upserts.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skovlund/netwatch/internal/merge"
	"github.com/skovlund/netwatch/internal/model"
)

const (
	connectAttempts = 5
	connectBackoff  = 3 * time.Second
)

// Postgres is the relational destination. One instance per process.
type Postgres struct {
	pool       *pgxpool.Pool
	stagingDir string
}

// Connect establishes the pool with bounded retries, bootstraps the schema,
// and ensures the current month's partition exists.
func Connect(ctx context.Context, dsn, stagingDir string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute
	cfg.ConnConfig.ConnectTimeout = 10 * time.Second

	var pool *pgxpool.Pool
	for attempt := 1; ; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				break
			}
			pool.Close()
		}
		if attempt >= connectAttempts {
			return nil, fmt.Errorf("store: connect after %d attempts: %w", attempt, err)
		}
		slog.Warn("database connect failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}

	s := &Postgres{pool: pool, stagingDir: stagingDir}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: bootstrap schema: %w", err)
	}
	if err := s.EnsurePartition(ctx, time.Now().UTC()); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// BulkLoadEvents copies a staged export into the events table and reports
// the number of rows loaded.
func (s *Postgres) BulkLoadEvents(ctx context.Context, stagedPath string) (int64, error) {
	events, err := readStaged(stagedPath)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(events))
	for i, ev := range events {
		rows[i] = []any{
			ev.ReceivedAt, ev.EventAt, nilIfEmpty(ev.SourceHost), nilIfEmpty(ev.AppName),
			ev.Facility, ev.Severity, ev.Message, ev.RawMessage,
			nilIfEmpty(ev.RemoteEndpoint), ev.Source,
		}
	}

	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"events"},
		[]string{
			"received_utc", "event_utc", "source_host", "app_name",
			"facility", "severity", "message", "raw_message",
			"remote_endpoint", "source",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("store: copy events: %w", err)
	}
	return n, nil
}

// InsertObservations bulk-inserts derived device observations.
func (s *Postgres) InsertObservations(ctx context.Context, obs []model.DeviceObservation) error {
	if len(obs) == 0 {
		return nil
	}
	rows := make([][]any, len(obs))
	for i, o := range obs {
		rows[i] = []any{
			o.OccurredAt, o.MAC, o.EventType, o.Category,
			nilIfEmpty(o.SourceHost), nilIfEmpty(o.AppName),
			o.RSSI, o.IPAddress, o.Message, o.RawMessage,
		}
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"device_observations"},
		[]string{
			"occurred_utc", "mac_address", "event_type", "category",
			"source_host", "app_name", "rssi", "ip_address",
			"message", "raw_message",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("store: copy observations: %w", err)
	}
	return nil
}

// MergeProfiles applies one coalescing upsert per aggregated MAC.
func (s *Postgres) MergeProfiles(ctx context.Context, updates []merge.Update) error {
	for _, u := range updates {
		_, err := s.pool.Exec(ctx, upsertProfileSQL,
			u.MAC,
			u.FirstSeen.OccurredAt,
			u.LastSeen.OccurredAt,
			u.EventType,
			u.Category,
			u.SourceHost,
			u.AppName,
			u.RSSI,
			u.VendorOUI,
			u.IPAddress,
			u.Count,
		)
		if err != nil {
			return fmt.Errorf("store: merge profile %s: %w", u.MAC, err)
		}
	}
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
