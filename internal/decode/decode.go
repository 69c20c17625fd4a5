// Package decode turns raw log lines into normalized event envelopes.
// Decoding is total: any input produces a value, never an error. A line
// that matches no grammar becomes an unstructured passthrough event.
package decode

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/skovlund/netwatch/internal/model"
)

// futureSlack is how far past "now" a parsed timestamp may land before the
// year-wrap heuristic kicks in (BSD syslog timestamps carry no year).
const futureSlack = 48 * time.Hour

var (
	priRe = regexp.MustCompile(`^<(\d{1,3})>`)

	// "Jan  5 10:00:00 host app: message"; app (with optional [pid]) is optional.
	bsdRe = regexp.MustCompile(`^([A-Z][a-z]{2}) {1,2}(\d{1,2}) (\d{2}:\d{2}:\d{2}) (\S+) (?:([^\s:\[]+)(?:\[\d+\])?: )?(.*)$`)

	// "2024-03-01 12:00:00 LEVEL body", the router export format.
	routerRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) ([A-Za-z]+) (.*)$`)
)

var routerLevels = map[string]int{
	"EMERG":    0,
	"ALERT":    1,
	"CRIT":     2,
	"CRITICAL": 2,
	"ERR":      3,
	"ERROR":    3,
	"WARN":     4,
	"WARNING":  4,
	"NOTICE":   5,
	"INFO":     6,
	"DEBUG":    7,
}

// Decoder parses raw lines against the syslog and router grammars.
// The zero value is not usable; construct with New.
type Decoder struct {
	loc *time.Location
	now func() time.Time
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLocation sets the location BSD timestamps are interpreted in.
// Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(d *Decoder) { d.loc = loc }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

// New creates a Decoder.
func New(opts ...Option) *Decoder {
	d := &Decoder{loc: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Syslog decodes one network-delivered line. It strips an optional <PRI>
// prefix, then tries the BSD grammar. Never fails.
func (d *Decoder) Syslog(raw string) model.NormalizedEvent {
	ev := model.NormalizedEvent{
		ReceivedAt: d.now().UTC(),
		RawMessage: raw,
		Message:    raw,
		Source:     model.SourceSyslog,
	}

	rest := raw
	if m := priRe.FindStringSubmatch(rest); m != nil {
		if pri, err := strconv.Atoi(m[1]); err == nil && pri <= 191 {
			fac, sev := pri/8, pri%8
			ev.Facility = &fac
			ev.Severity = &sev
			rest = rest[len(m[0]):]
			ev.Message = rest
		}
	}

	m := bsdRe.FindStringSubmatch(rest)
	if m == nil {
		ev.Message = norm.NFC.String(ev.Message)
		return ev
	}

	if ts, ok := d.parseBSDTime(m[1], m[2], m[3]); ok {
		ev.EventAt = &ts
	}
	ev.SourceHost = m[4]
	ev.AppName = m[5]
	ev.Message = norm.NFC.String(m[6])
	return ev
}

// Router decodes one line of the router's log export. Lines that do not
// match the router grammar pass through unstructured.
func (d *Decoder) Router(raw string) model.NormalizedEvent {
	ev := model.NormalizedEvent{
		ReceivedAt: d.now().UTC(),
		RawMessage: raw,
		Message:    norm.NFC.String(raw),
		Source:     model.SourceRouter,
	}

	m := routerRe.FindStringSubmatch(raw)
	if m == nil {
		return ev
	}
	sev, ok := routerLevels[strings.ToUpper(m[2])]
	if !ok {
		return ev
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", m[1], d.loc)
	if err != nil {
		return ev
	}

	utc := ts.UTC()
	ev.EventAt = &utc
	ev.Severity = &sev
	ev.Message = norm.NFC.String(m[3])
	return ev
}

// parseBSDTime assembles a timestamp from the month/day/clock fields of a
// BSD syslog header, assuming the current year. A result landing more than
// futureSlack past "now" is moved back one year.
func (d *Decoder) parseBSDTime(mon, day, clock string) (time.Time, bool) {
	now := d.now()
	stamp := mon + " " + day + " " + clock
	ts, err := time.ParseInLocation("Jan 2 15:04:05", stamp, d.loc)
	if err != nil {
		return time.Time{}, false
	}
	ts = ts.AddDate(now.Year(), 0, 0)
	if ts.After(now.Add(futureSlack)) {
		ts = ts.AddDate(-1, 0, 0)
	}
	return ts.UTC(), true
}
