package model

import "time"

// Capture is a still frame stored under the media root.
type Capture struct {
	ID        int64     `gorm:"primaryKey"`
	CameraID  int64     `gorm:"index;not null"`
	ImagePath string    `gorm:"size:512;not null"` // relative to the media root
	CreatedAt time.Time `gorm:"not null;index"`

	Camera Camera `gorm:"constraint:OnDelete:CASCADE"`
}
