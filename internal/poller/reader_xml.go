package poller

import (
	"bytes"
	"encoding/xml"
	"time"
)

// wevtEvent mirrors the fields of wevtutil's RenderedXml output we consume.
type wevtEvent struct {
	System struct {
		Provider struct {
			Name string `xml:"Name,attr"`
		} `xml:"Provider"`
		EventID     int   `xml:"EventID"`
		Level       int   `xml:"Level"`
		RecordID    int64 `xml:"EventRecordID"`
		TimeCreated struct {
			SystemTime string `xml:"SystemTime,attr"`
		} `xml:"TimeCreated"`
		Channel string `xml:"Channel"`
	} `xml:"System"`
	Rendering struct {
		Message string `xml:"Message"`
		Level   string `xml:"Level"`
	} `xml:"RenderingInfo"`
}

var levelText = map[int]string{
	1: "Critical",
	2: "Error",
	3: "Warning",
	4: "Information",
	5: "Verbose",
}

// parseRendered decodes the concatenated <Event> elements the subsystem's
// query tool emits (no surrounding root element).
func parseRendered(out []byte) ([]Record, error) {
	var records []Record
	dec := xml.NewDecoder(bytes.NewReader(out))
	for {
		var ev wevtEvent
		if err := dec.Decode(&ev); err != nil {
			break // io.EOF or trailing noise after the last element
		}
		rec := Record{
			Channel:  ev.System.Channel,
			Provider: ev.System.Provider.Name,
			RecordID: ev.System.RecordID,
			EventID:  ev.System.EventID,
			Message:  ev.Rendering.Message,
		}
		rec.Level = ev.Rendering.Level
		if rec.Level == "" {
			rec.Level = levelText[ev.System.Level]
		}
		if ts, err := time.Parse(time.RFC3339Nano, ev.System.TimeCreated.SystemTime); err == nil {
			rec.Time = ts.UTC()
		}
		records = append(records, rec)
	}
	return records, nil
}
