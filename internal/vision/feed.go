package vision

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"camguard-backend/internal/logger"
	"camguard-backend/internal/model"
)

// Feed turns camera streams into JPEG frames. Every call opens its own
// Source, so nothing is shared between requests.
type Feed struct {
	open   Opener
	motion MotionConfig
	sink   CaptureSink
	now    func() time.Time
}

// NewFeed creates a feed. A nil open uses OpenCapture; a nil sink disables
// motion captures.
func NewFeed(open Opener, motion MotionConfig, sink CaptureSink) *Feed {
	if open == nil {
		open = OpenCapture
	}
	return &Feed{open: open, motion: motion, sink: sink, now: time.Now}
}

// JPEGFrames streams cam as JPEG images, running motion detection first when
// detectMotion is set. Frames that fail to encode are skipped.
func (f *Feed) JPEGFrames(ctx context.Context, cam model.Camera, detectMotion bool) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		frames := NewSource(cam.StreamAddress, f.open).Frames(ctx)
		if detectMotion && f.sink != nil {
			det := NewDetector(cam.ID, f.motion, f.sink, f.now)
			defer det.Close()
			frames = det.Watch(frames)
		}

		for frame := range frames {
			jpeg, err := EncodeJPEG(frame)
			if err != nil {
				logger.Log.Warnf("skipping frame from camera %d: %v", cam.ID, err)
				continue
			}
			if !yield(jpeg) {
				return
			}
		}
	}
}

// Snapshot opens address, reads one frame, encodes it and releases the
// stream.
func (f *Feed) Snapshot(ctx context.Context, address string) ([]byte, error) {
	src := NewSource(address, f.open)
	for frame := range src.Frames(ctx) {
		return EncodeJPEG(frame)
	}
	if err := src.Err(); err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return nil, fmt.Errorf("snapshot %s: %w", address, err)
	}
	return nil, fmt.Errorf("snapshot %s: %w", address, ErrNoFrame)
}
