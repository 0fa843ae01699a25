package model

import "time"

type Document struct {
	ID               string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           string     `gorm:"type:varchar(36);index" json:"user_id"`
	Name             string     `gorm:"size:256;not null" json:"name"`
	OriginalFilename string     `gorm:"size:256;not null" json:"original_filename"`
	Title            string     `gorm:"size:256" json:"title"`
	Author           string     `gorm:"size:256" json:"author"`
	PageCount        int        `json:"page_count"`
	ChunkCount       int        `json:"chunk_count"`
	StorageKey       string     `gorm:"size:512" json:"-"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
