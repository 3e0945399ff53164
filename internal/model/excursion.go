package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ExcursionStatus string

const (
	ExcursionScheduled ExcursionStatus = "scheduled"
	ExcursionCancelled ExcursionStatus = "cancelled"
	ExcursionArchived  ExcursionStatus = "archived"
)

// FieldMap is a sparse field-name -> value map stored as JSONB. It backs both
// per-occurrence overrides and template change requests.
type FieldMap map[string]any

func (m FieldMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *FieldMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into FieldMap", src)
	}
	return json.Unmarshal(raw, m)
}

// Excursion is a concrete, bookable trip. When SeriesID is set the record was
// materialized from a recurrence pattern and OccurrenceStart holds the
// canonical instant the pattern produced, which stays fixed even when the
// trip is rescheduled (DepartureTime moves, the key does not).
type Excursion struct {
	ID              int             `db:"id" json:"id"`
	PublicID        string          `db:"public_id" json:"public_id"`
	SeriesID        *int            `db:"series_id" json:"series_id"`
	OccurrenceStart *time.Time      `db:"occurrence_start" json:"occurrence_start"`
	DepartureTime   time.Time       `db:"departure_time" json:"departure_time"`
	Status          ExcursionStatus `db:"status" json:"status"`

	// IsOverride flips once staff edit any field away from the template;
	// OverrideFields keys are never clobbered by template-driven refresh.
	IsOverride     bool     `db:"is_override" json:"is_override"`
	OverrideFields FieldMap `db:"override_fields" json:"override_fields"`

	Template

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
