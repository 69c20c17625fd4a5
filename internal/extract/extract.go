// Package extract performs entity resolution on message text: it finds
// MAC/IP/RSSI tokens and classifies events into categories via keyword
// rules, producing per-device observations.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/skovlund/netwatch/internal/model"
)

var (
	macRe  = regexp.MustCompile(`(?i)\b[0-9a-f]{2}([:-])[0-9a-f]{2}(?:[:-][0-9a-f]{2}){4}\b`)
	rssiRe = regexp.MustCompile(`(?i)\brssi[:=\s]\s*(-?\d{1,3})\b`)
	ipv4Re = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// NormalizeMAC converts a colon- or hyphen-separated MAC token to the
// canonical uppercase-colon form.
func NormalizeMAC(tok string) string {
	return strings.ToUpper(strings.ReplaceAll(tok, "-", ":"))
}

// Observations derives zero or more device observations from an event.
// An event with no MAC token yields none; N distinct MACs yield N
// observations sharing one classification.
func Observations(ev model.NormalizedEvent) []model.DeviceObservation {
	macs := distinctMACs(ev.Message)
	if len(macs) == 0 {
		return nil
	}

	category, eventType := Classify(ev.AppName, ev.Message)

	occurred := ev.ReceivedAt
	if ev.EventAt != nil {
		occurred = *ev.EventAt
	}

	var rssi *int
	if m := rssiRe.FindStringSubmatch(ev.Message); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			rssi = &v
		}
	}

	var ip *string
	if tok := ipv4Re.FindString(ev.Message); tok != "" && validIPv4(tok) {
		ip = &tok
	}

	obs := make([]model.DeviceObservation, 0, len(macs))
	for _, mac := range macs {
		obs = append(obs, model.DeviceObservation{
			OccurredAt: occurred,
			MAC:        mac,
			EventType:  eventType,
			Category:   category,
			SourceHost: ev.SourceHost,
			AppName:    ev.AppName,
			RSSI:       rssi,
			IPAddress:  ip,
			Message:    ev.Message,
			RawMessage: ev.RawMessage,
		})
	}
	return obs
}

// distinctMACs returns normalized MACs in first-occurrence order.
func distinctMACs(text string) []string {
	seen := make(map[string]bool)
	var macs []string
	for _, tok := range macRe.FindAllString(text, -1) {
		mac := NormalizeMAC(tok)
		if !seen[mac] {
			seen[mac] = true
			macs = append(macs, mac)
		}
	}
	return macs
}

func validIPv4(tok string) bool {
	for _, part := range strings.Split(tok, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}
