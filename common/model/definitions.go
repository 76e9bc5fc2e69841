package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the backend's date format (no zone, server local time).
const TimestampLayout = "2006-01-02T15:04:05"

// Timestamp encodes as TimestampLayout and decodes leniently: RFC 3339 values,
// empty strings and null are accepted as well.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Second)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(TimestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", s)
}

// JSONUnmarshal is the single place response bodies are decoded.
func JSONUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// JSONMarshal is the single place request bodies are encoded.
func JSONMarshal(in interface{}) ([]byte, error) {
	return json.Marshal(in)
}

// ----------------------------------------------------------------------
// MyStuff resources
// ----------------------------------------------------------------------

// Item is one thing the user keeps track of.
type Item struct {
	ID          int64     `json:"id,omitempty"`
	Name        string    `json:"name"`
	Amount      int       `json:"amount"`
	LastUsed    Timestamp `json:"lastUsed"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
}
