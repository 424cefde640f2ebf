package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the human-readable form used for every formatted instant.
const TimeLayout = "2006-01-02 15:04:05 MST"

// Zone is a labelled timezone, e.g. {"Tokyo (JST)", Asia/Tokyo}.
type Zone struct {
	Label    string
	Location *time.Location
}

// ZoneTime is one row of a conversion table.
type ZoneTime struct {
	Label string
	Local string
}

// ZoneTable is an ordered label -> formatted local time mapping. It encodes as a JSON
// object whose members keep the table order, and decodes back in document order.
type ZoneTable []ZoneTime

// BuildZoneTable formats instant once per zone. The instant is never re-read.
func BuildZoneTable(instant time.Time, zones []Zone) ZoneTable {
	table := make(ZoneTable, 0, len(zones))
	for _, z := range zones {
		table = append(table, ZoneTime{Label: z.Label, Local: instant.In(z.Location).Format(TimeLayout)})
	}
	return table
}

// FormatInstant renders t in UTC with TimeLayout.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Lookup returns the formatted time for label.
func (t ZoneTable) Lookup(label string) (string, bool) {
	for _, row := range t {
		if row.Label == label {
			return row.Local, true
		}
	}
	return "", false
}

func (t ZoneTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, row := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(row.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(row.Local)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *ZoneTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*t = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("zone table: expected object, got %v", tok)
	}

	out := ZoneTable{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("zone table: expected string key, got %v", keyTok)
		}
		var local string
		if err := dec.Decode(&local); err != nil {
			return fmt.Errorf("zone table: value for %q: %w", label, err)
		}
		out = append(out, ZoneTime{Label: label, Local: local})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*t = out
	return nil
}
