package models

import "time"

// SessionSnapshot is the persisted form of one session's state.
type SessionSnapshot struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Payload   string    `json:"payload" gorm:"type:jsonb;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
