//go:build windows

package poller

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// SystemReader queries the Windows event log through wevtutil's structured
// XML output.
type SystemReader struct{}

// NewSystemReader returns the platform reader.
func NewSystemReader() Reader {
	return &SystemReader{}
}

// Query runs a record-id-bounded wevtutil query against one channel.
func (r *SystemReader) Query(ctx context.Context, channel string, afterID int64, _ time.Time, max int) ([]Record, error) {
	xpath := fmt.Sprintf("*[System[EventRecordID > %d]]", afterID)
	cmd := exec.CommandContext(ctx, "wevtutil", "qe", channel,
		"/q:"+xpath,
		"/c:"+strconv.Itoa(max),
		"/f:RenderedXml",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("wevtutil query %s: %w", channel, err)
	}
	return parseRendered(out)
}
