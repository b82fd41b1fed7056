package history

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

const schemaVersion = 1

// Entry is one completed generation. Timestamp is the creation time in
// epoch milliseconds and doubles as the primary key.
type Entry struct {
	Timestamp int64          `gorm:"primaryKey;autoIncrement:false" json:"timestamp"`
	Original  string         `gorm:"not null" json:"original"`
	Results   datatypes.JSON `json:"results"`
	Style     string         `gorm:"size:64" json:"style"`
	Category  string         `gorm:"size:64" json:"category"`
	Detail    string         `gorm:"size:1000" json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName pins the history table name.
func (Entry) TableName() string {
	return "history_entries"
}

// ResultMap decodes Results into variant name → encoded image.
func (e Entry) ResultMap() (map[string]string, error) {
	out := map[string]string{}
	if len(e.Results) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(e.Results, &out); err != nil {
		return nil, fmt.Errorf("history: decode results of %d: %w", e.Timestamp, err)
	}
	return out, nil
}

// SetResults replaces Results with the given variants.
func (e *Entry) SetResults(results map[string]string) error {
	if results == nil {
		results = map[string]string{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("history: encode results: %w", err)
	}
	e.Results = datatypes.JSON(raw)
	return nil
}

// schemaRow records the applied schema version so migrations only run on
// first open or after an upgrade.
type schemaRow struct {
	ID        uint `gorm:"primaryKey"`
	Version   int  `gorm:"not null"`
	AppliedAt time.Time
}

// TableName pins the schema version table name.
func (schemaRow) TableName() string {
	return "history_schema"
}
