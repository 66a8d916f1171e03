package model

import "time"

// AccessToken grants stream access to a single camera until it expires or is used.
type AccessToken struct {
	ID        int64     `gorm:"primaryKey"`
	CameraID  int64     `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:64;not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Used      bool      `gorm:"not null;default:false"`

	Camera Camera `gorm:"constraint:OnDelete:CASCADE"`
}

// ValidAt reports whether the token is unused and not yet expired at now.
func (t AccessToken) ValidAt(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
