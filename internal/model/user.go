package model

import "time"

// User is an operator allowed to manage cameras.
type User struct {
	ID           int64     `gorm:"primaryKey"`
	Username     string    `gorm:"uniqueIndex;size:150;not null"`
	Email        string    `gorm:"size:254"`
	PasswordHash []byte    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}
