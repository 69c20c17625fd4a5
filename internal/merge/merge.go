// Package merge folds a batch of device observations into per-MAC profile
// updates. The store applies each update with coalescing upsert semantics;
// this package only does the in-memory aggregation.
package merge

import (
	"sort"

	"github.com/skovlund/netwatch/internal/model"
)

// Update is the aggregate of one batch for one MAC. Nullable fields carry
// the value from the chronologically latest observation that had one, each
// field independently.
type Update struct {
	MAC        string
	FirstSeen  model.DeviceObservation
	LastSeen   model.DeviceObservation
	Count      int64
	EventType  *string
	Category   *string
	SourceHost *string
	AppName    *string
	RSSI       *int
	IPAddress  *string
	VendorOUI  *string
}

// Batch groups observations by MAC and aggregates each group. Updates are
// returned ordered by MAC for deterministic apply order.
func Batch(obs []model.DeviceObservation) []Update {
	byMAC := make(map[string][]model.DeviceObservation)
	for _, o := range obs {
		byMAC[o.MAC] = append(byMAC[o.MAC], o)
	}

	updates := make([]Update, 0, len(byMAC))
	for mac, group := range byMAC {
		updates = append(updates, aggregate(mac, group))
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].MAC < updates[j].MAC })
	return updates
}

// aggregate walks a group in chronological order so that a later non-null
// value always overwrites an earlier one. The incoming slice keeps the
// batch's arrival order; the sort is stable so equal timestamps keep it.
func aggregate(mac string, group []model.DeviceObservation) Update {
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].OccurredAt.Before(group[j].OccurredAt)
	})

	u := Update{
		MAC:       mac,
		FirstSeen: group[0],
		LastSeen:  group[len(group)-1],
		Count:     int64(len(group)),
	}

	for _, o := range group {
		if o.EventType != "" {
			et := o.EventType
			u.EventType = &et
		}
		if o.Category != "" {
			c := o.Category
			u.Category = &c
		}
		if o.SourceHost != "" {
			h := o.SourceHost
			u.SourceHost = &h
		}
		if o.AppName != "" {
			a := o.AppName
			u.AppName = &a
		}
		if o.RSSI != nil {
			v := *o.RSSI
			u.RSSI = &v
		}
		if o.IPAddress != nil {
			ip := *o.IPAddress
			u.IPAddress = &ip
		}
	}

	if len(mac) >= 8 {
		oui := mac[:8]
		u.VendorOUI = &oui
	}
	return u
}
