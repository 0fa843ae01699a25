package model

import "time"

// ChatSession is a conversation thread, optionally bound to one document.
// DocumentID is never reassigned once set. UpdatedAt advances on every
// message written to the session.
type ChatSession struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     string    `gorm:"type:varchar(36);index" json:"user_id"`
	DocumentID *string   `gorm:"type:varchar(36);index" json:"document_id,omitempty"`
	Title      string    `gorm:"size:128;not null" json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
