package store

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Partition identifiers follow a closed format and are validated against it
// before ever being interpolated into DDL. Range bounds are rendered from
// time values, never from input text.
var partitionNameRe = regexp.MustCompile(`^events_y\d{4}m\d{2}$`)

// PartitionName returns the identifier of the monthly partition covering t.
func PartitionName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("events_y%04dm%02d", t.Year(), int(t.Month()))
}

// EnsurePartition idempotently creates the events partition for the month
// containing at. Safe to call repeatedly for the same month.
func (s *Postgres) EnsurePartition(ctx context.Context, at time.Time) error {
	name, ddl, err := partitionDDL(at)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("store: ensure partition %s: %w", name, err)
	}
	return nil
}

// partitionDDL renders the create-if-missing statement for at's month.
func partitionDDL(at time.Time) (name, ddl string, err error) {
	name = PartitionName(at)
	if !partitionNameRe.MatchString(name) {
		return "", "", fmt.Errorf("store: invalid partition name %q", name)
	}

	from := monthStart(at)
	to := from.AddDate(0, 1, 0)

	ddl = fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF events FOR VALUES FROM ('%s') TO ('%s')`,
		name,
		from.Format(time.RFC3339),
		to.Format(time.RFC3339),
	)
	return name, ddl, nil
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
