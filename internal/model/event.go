package model

import "time"

// Source labels distinguish which ingestion path produced an event.
const (
	SourceSyslog   = "syslog"
	SourceRouter   = "router"
	SourceWifiScan = "wifi-scan"
)

// Labels lists every source label the collector produces, in a stable order.
func Labels() []string {
	return []string{SourceSyslog, SourceRouter, SourceWifiScan}
}

// NormalizedEvent is the common envelope all sources decode into.
// ReceivedAt is always set; the pointer fields stay nil unless the decoder
// matched a grammar that carries them.
type NormalizedEvent struct {
	ReceivedAt     time.Time
	EventAt        *time.Time
	SourceHost     string
	AppName        string
	Facility       *int // 0–23
	Severity       *int // 0–7
	Message        string
	RawMessage     string
	RemoteEndpoint string
	Source         string // one of the Source* labels
}
