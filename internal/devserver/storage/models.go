package storage

import "time"

// Output is the persisted form of a record. Content is the JSON-encoded
// payload, kept opaque at the storage layer.
type Output struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID   string    `json:"owner_id" gorm:"type:text;index"`
	ToolName  string    `json:"tool_name" gorm:"type:text"`
	Content   string    `json:"content" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
