// Package model contains the records the dashboard reads from the backend.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ID identifies score records, issuers and history rows.
type ID int64

// ScoreRecord is one issuer's credit score at a point in time. A changed score
// arrives as a new record with a new ScoreID; records are never mutated.
type ScoreRecord struct {
	ScoreID    ID        `json:"score_id"`
	IssuerID   ID        `json:"issuer_id"`
	Issuer     string    `json:"issuer"`
	AssetClass string    `json:"asset_class"`
	Score      float64   `json:"score"`
	TS         Timestamp `json:"ts"`
}

// HistoryEntry is one point of an issuer's score trend.
type HistoryEntry struct {
	ID    ID        `json:"id"`
	TS    Timestamp `json:"ts"`
	Score float64   `json:"score"`
}

// DriverExplanation is the SHAP attribution of one feature to a score.
type DriverExplanation struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Shap    float64 `json:"shap"`
}

// Health is the backend liveness payload.
type Health struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

// timestampLayouts are tried in order. The backend may emit naive datetimes
// (no zone), which are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a time.Time that accepts zoned and naive ISO-8601 strings.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t} }

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
