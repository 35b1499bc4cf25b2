package session

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TableName is the table the pipeline shares with the other agents.
const TableName = "video_session"

// VideoSession is one row of the video_session table.
type VideoSession struct {
	ID                string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID            string    `gorm:"column:user_id;size:64;not null;index" json:"user_id"`
	Topic             string    `gorm:"column:topic" json:"topic"`
	ConfirmedFacts    Facts     `gorm:"column:confirmed_facts;type:text" json:"confirmed_facts"`
	GeneratedScript   string    `gorm:"column:generated_script;type:text" json:"generated_script"`
	LearningObjective string    `gorm:"column:learning_objective" json:"learning_objective"`
	ChildAge          string    `gorm:"column:child_age" json:"child_age"`
	ChildInterest     string    `gorm:"column:child_interest" json:"child_interest"`
	CreatedAt         time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName implements gorm's tabler.
func (VideoSession) TableName() string { return TableName }

// Fact is one confirmed fact. Entries stored as bare strings decode into
// Concept with empty Details.
type Fact struct {
	Concept string `json:"concept"`
	Details string `json:"details,omitempty"`
}

// UnmarshalJSON accepts either a string or an object with concept/details.
func (f *Fact) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Fact{Concept: s}
		return nil
	}

	var obj struct {
		Concept any `json:"concept"`
		Details any `json:"details"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("fact must be a string or object: %w", err)
	}
	*f = Fact{Concept: looseString(obj.Concept), Details: looseString(obj.Details)}
	return nil
}

func looseString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Facts is stored as JSON text in confirmed_facts.
type Facts []Fact

// Value implements driver.Valuer.
func (f Facts) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal([]Fact(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. NULL and empty text scan to nil.
func (f *Facts) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported confirmed_facts type %T", src)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		*f = nil
		return nil
	}

	var out []Fact
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode confirmed_facts: %w", err)
	}
	*f = out
	return nil
}

// Concepts returns the non-empty facts in order.
func (f Facts) Concepts() []Fact {
	out := make([]Fact, 0, len(f))
	for _, fact := range f {
		if strings.TrimSpace(fact.Concept) != "" {
			out = append(out, fact)
		}
	}
	return out
}
