//go:build !windows

package poller

import (
	"context"
	"time"
)

// SystemReader is the stand-in on platforms without an event-log subsystem.
type SystemReader struct{}

// NewSystemReader returns the platform reader.
func NewSystemReader() Reader {
	return &SystemReader{}
}

// Query always reports the subsystem as absent.
func (r *SystemReader) Query(context.Context, string, int64, time.Time, int) ([]Record, error) {
	return nil, ErrUnsupported
}
