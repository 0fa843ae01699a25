package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is immutable once written; CreatedAt defines the strict
// chronological order within a session.
type ChatMessage struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	SessionID string    `gorm:"type:varchar(36);not null;index" json:"session_id"`
	UserID    string    `gorm:"type:varchar(36);index" json:"user_id"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Metadata  string    `gorm:"type:text" json:"metadata,omitempty"` // optional JSON blob
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
