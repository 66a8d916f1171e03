package model

import "time"

// Camera is a registered video source.
type Camera struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"uniqueIndex;size:150;not null" json:"name"`
	StreamAddress string    `gorm:"column:stream_address;size:1024;not null" json:"stream_address"`
	Description   string    `gorm:"type:text" json:"description"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`

	// Associations
	AccessTokens []AccessToken `gorm:"foreignKey:CameraID;constraint:OnDelete:CASCADE" json:"-"`
	Captures     []Capture     `gorm:"foreignKey:CameraID;constraint:OnDelete:CASCADE" json:"-"`
}
