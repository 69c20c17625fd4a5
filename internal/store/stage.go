package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/skovlund/netwatch/internal/model"
)

// stagedEvent is the NDJSON row format of a staging export. The staged file
// is the handoff between snapshot and bulk load: written, loaded, deleted.
type stagedEvent struct {
	ReceivedAt     time.Time  `json:"received_utc"`
	EventAt        *time.Time `json:"event_utc,omitempty"`
	SourceHost     string     `json:"source_host,omitempty"`
	AppName        string     `json:"app_name,omitempty"`
	Facility       *int       `json:"facility,omitempty"`
	Severity       *int       `json:"severity,omitempty"`
	Message        string     `json:"message"`
	RawMessage     string     `json:"raw_message"`
	RemoteEndpoint string     `json:"remote_endpoint,omitempty"`
	Source         string     `json:"source"`
}

// Stage writes a batch as an NDJSON staging export and returns its path.
// The caller removes the file once the batch is loaded (or abandoned).
func (s *Postgres) Stage(label string, events []model.NormalizedEvent) (string, error) {
	name := fmt.Sprintf("netwatch-%s-%s.ndjson", label, uuid.NewString())
	path := filepath.Join(s.stagingDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("store: create staging file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(toStaged(ev)); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("store: stage event: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("store: flush staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("store: close staging file: %w", err)
	}
	return path, nil
}

func toStaged(ev model.NormalizedEvent) stagedEvent {
	return stagedEvent{
		ReceivedAt:     ev.ReceivedAt,
		EventAt:        ev.EventAt,
		SourceHost:     ev.SourceHost,
		AppName:        ev.AppName,
		Facility:       ev.Facility,
		Severity:       ev.Severity,
		Message:        ev.Message,
		RawMessage:     ev.RawMessage,
		RemoteEndpoint: ev.RemoteEndpoint,
		Source:         ev.Source,
	}
}

// readStaged parses a staging export back into events for the bulk load.
func readStaged(path string) ([]model.NormalizedEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open staging file: %w", err)
	}
	defer f.Close()

	var events []model.NormalizedEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var se stagedEvent
		if err := json.Unmarshal(sc.Bytes(), &se); err != nil {
			return nil, fmt.Errorf("store: parse staged row: %w", err)
		}
		events = append(events, model.NormalizedEvent{
			ReceivedAt:     se.ReceivedAt,
			EventAt:        se.EventAt,
			SourceHost:     se.SourceHost,
			AppName:        se.AppName,
			Facility:       se.Facility,
			Severity:       se.Severity,
			Message:        se.Message,
			RawMessage:     se.RawMessage,
			RemoteEndpoint: se.RemoteEndpoint,
			Source:         se.Source,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("store: read staging file: %w", err)
	}
	return events, nil
}
