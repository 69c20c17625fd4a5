package model

import "time"

// DeviceObservation is one sighting of a device, derived at flush time from
// a syslog-origin event containing at least one MAC address. An event with
// N distinct MACs yields N observations sharing one classification.
type DeviceObservation struct {
	OccurredAt time.Time
	MAC        string // normalized AA:BB:CC:DD:EE:FF
	EventType  string
	Category   string
	SourceHost string
	AppName    string
	RSSI       *int
	IPAddress  *string
	Message    string
	RawMessage string
}

// DeviceProfile is the rolling per-MAC aggregate the merger maintains.
// first_seen ≤ last_seen always holds; TotalEvents never decreases.
type DeviceProfile struct {
	MAC            string
	FirstSeen      time.Time
	LastSeen       time.Time
	LastEventType  *string
	LastCategory   *string
	LastSourceHost *string
	LastAppName    *string
	LastRSSI       *int
	VendorOUI      *string
	LastIP         *string
	TotalEvents    int64
}
