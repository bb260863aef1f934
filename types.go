package outfeed

import (
	"strings"
	"time"
)

// Difficulty labels an output's difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// OutputContent is the structured payload of a record.
type OutputContent struct {
	Questions  []string   `json:"questions"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}

// Record is one submitted output. Records are immutable once created;
// id, owner and timestamp are assigned by the backend.
type Record struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"user_id"`
	ToolName  string        `json:"tool_name"`
	Content   OutputContent `json:"output_content"`
	CreatedAt time.Time     `json:"created_at"`
}

// Normalize fills defaulted fields the backend may omit.
func (r *Record) Normalize() {
	if r.Content.Difficulty == "" {
		r.Content.Difficulty = DifficultyEasy
	}
}

// Filter narrows a feed fetch. The zero value restricts nothing.
type Filter struct {
	// Tool is a case-insensitive substring match on the tool name.
	Tool string `json:"tool,omitempty"`
	// Date limits results to one calendar day, formatted YYYY-MM-DD.
	Date string `json:"date,omitempty"`
}

// Empty reports whether the filter restricts nothing.
func (f Filter) Empty() bool {
	return strings.TrimSpace(f.Tool) == "" && strings.TrimSpace(f.Date) == ""
}

// FeedPage is one page of fetched records plus paging metadata.
type FeedPage struct {
	Items      []Record `json:"data"`
	TotalPages int      `json:"total_pages"`
}

// Draft is a record submission before it reaches the backend.
type Draft struct {
	ToolName   string     `json:"tool_name"`
	Questions  []string   `json:"questions"`
	Difficulty Difficulty `json:"difficulty"`
}

// Clean trims the draft and applies defaults, or reports why it is not
// submittable. Blank questions are discarded.
func (d Draft) Clean() (Draft, error) {
	out := Draft{
		ToolName:   strings.TrimSpace(d.ToolName),
		Difficulty: d.Difficulty,
	}
	if out.ToolName == "" {
		return Draft{}, ValidationError{Field: "tool_name", Message: "tool name required"}
	}
	for _, q := range d.Questions {
		q = strings.TrimSpace(q)
		if q != "" {
			out.Questions = append(out.Questions, q)
		}
	}
	if len(out.Questions) == 0 {
		return Draft{}, ValidationError{Field: "questions", Message: "at least one question required"}
	}
	if out.Difficulty == "" {
		out.Difficulty = DifficultyEasy
	}
	if !out.Difficulty.Valid() {
		return Draft{}, ValidationError{Field: "difficulty", Message: "difficulty must be easy, medium or hard"}
	}
	return out, nil
}

// Validate reports whether the draft would survive Clean.
func (d Draft) Validate() error {
	_, err := d.Clean()
	return err
}

const (
	// EventInsert announces a newly created record.
	EventInsert = "insert"
	// EventHeartbeat keeps the realtime connection alive.
	EventHeartbeat = "h"
)

// Event is the wire envelope for push notifications.
type Event struct {
	Type   string `json:"type"`
	Record Record `json:"record"`
}

// Session carries the externally issued credentials the clients need.
// Both values are opaque to this module.
type Session struct {
	Token  string
	UserID string
}
