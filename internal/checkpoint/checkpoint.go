// Package checkpoint persists per-source poll cursors as JSON files.
// A cursor is only written after the batch it covers has been durably
// loaded, so a crash re-delivers rather than loses.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RouterCursor marks router-poll progress: the newest event time durably
// loaded so far.
type RouterCursor struct {
	LastEventUtc time.Time `json:"LastEventUtc"`
}

// ChannelCursor marks event-log progress within one channel.
type ChannelCursor struct {
	LastRecordId int64     `json:"LastRecordId"`
	LastTimeUtc  time.Time `json:"LastTimeUtc"`
}

// EventLogCursor holds the per-channel cursors of the event-log poller.
type EventLogCursor struct {
	Logs map[string]ChannelCursor `json:"Logs"`
}

// Store reads and writes cursor files under one state directory.
type Store struct {
	dir string
}

// NewStore creates the state directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create state dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// LoadRouter reads the router cursor. A missing file is a zero cursor.
func (s *Store) LoadRouter() (RouterCursor, error) {
	var c RouterCursor
	err := s.load("router.json", &c)
	return c, err
}

// SaveRouter overwrites the router cursor.
func (s *Store) SaveRouter(c RouterCursor) error {
	return s.save("router.json", c)
}

// LoadEventLog reads the event-log cursor. A missing file yields an empty
// (but non-nil) channel map.
func (s *Store) LoadEventLog() (EventLogCursor, error) {
	var c EventLogCursor
	err := s.load("eventlog.json", &c)
	if c.Logs == nil {
		c.Logs = make(map[string]ChannelCursor)
	}
	return c, err
}

// SaveEventLog overwrites the event-log cursor.
func (s *Store) SaveEventLog(c EventLogCursor) error {
	return s.save("eventlog.json", c)
}

func (s *Store) load(name string, dest any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checkpoint: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("checkpoint: parse %s: %w", name, err)
	}
	return nil
}

// save writes to a temp file in the same directory and renames it over the
// target, so readers never observe a partial cursor.
func (s *Store) save(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("checkpoint: rename %s: %w", name, err)
	}
	return nil
}
