package store

import (
	"errors"
	"time"

	"camguard-backend/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCameraExists is returned when a camera name is already registered.
	ErrCameraExists = errors.New("camera already exists")
	// ErrUserExists is returned when a username is already taken.
	ErrUserExists = errors.New("user already exists")
)

// CaptureFilter narrows a gallery listing. Nil fields are not applied and
// both time bounds are inclusive.
type CaptureFilter struct {
	CameraID *int64
	From     *time.Time
	To       *time.Time
}

// CameraSummary is a camera together with its most recent capture, if any.
type CameraSummary struct {
	model.Camera
	LastCapture *model.Capture
}
