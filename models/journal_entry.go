package models

import "time"

// DateLayout is the formatted date used in rows and dedup keys.
const DateLayout = "2006-01-02 15:04:05"

// JournalEntry is the canonical record produced from any incoming payload.
// It is passed by value and never mutated after normalization.
type JournalEntry struct {
	ID           string  `json:"id"`
	CreatedAt    string  `json:"created_at"`
	Date         string  `json:"date"`
	Duration     float64 `json:"duration"`
	Conversation string  `json:"conversation"`
	Summary      string  `json:"summary,omitempty"`
	User         string  `json:"user,omitempty"`
	CalledNumber string  `json:"called_number,omitempty"`
	AgentID      string  `json:"agent_id,omitempty"`
	Status       string  `json:"status,omitempty"`
	MajorEvents  string  `json:"major_events,omitempty"`
	Mood         string  `json:"mood,omitempty"`
	Insights     string  `json:"insights,omitempty"`
	ActionItems  string  `json:"action_items,omitempty"`
	Shape        string  `json:"shape,omitempty"`
}

// Key is the dedup key of the entry: "<date>:<id>".
func (e JournalEntry) Key() string {
	return DedupKey(e.Date, e.ID)
}

func DedupKey(date, id string) string {
	return date + ":" + id
}

// FormatDate renders t in DateLayout, keeping t's own offset.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
