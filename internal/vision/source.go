// Package vision reads frames from camera streams with OpenCV and runs motion
// detection over them.
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"gocv.io/x/gocv"

	"camguard-backend/internal/logger"
)

var (
	ErrSourceUnavailable = errors.New("video source unavailable")
	ErrNoFrame           = errors.New("no frame read from source")
	ErrEncode            = errors.New("frame encoding failed")
)

// Handle is an open video stream.
type Handle interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Opener opens a Handle for a stream address.
type Opener func(address string) (Handle, error)

// OpenCapture opens address through OpenCV. It accepts anything
// VideoCapture understands: rtsp/http URLs, files or device indexes.
func OpenCapture(address string) (Handle, error) {
	vc, err := gocv.OpenVideoCapture(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: cannot open %s", ErrSourceUnavailable, address)
	}
	return vc, nil
}

// Source is a single-use frame sequence over one stream address.
type Source struct {
	address string
	open    Opener
	started atomic.Bool
	err     error
}

// NewSource prepares a source; nothing is opened until Frames is ranged over.
func NewSource(address string, open Opener) *Source {
	if open == nil {
		open = OpenCapture
	}
	return &Source{address: address, open: open}
}

// Frames opens the stream and yields decoded frames until the stream ends, a
// read fails, ctx is done or the consumer stops. The handle is closed exactly
// once on every one of those paths. If the stream cannot be opened the
// sequence is empty and Err reports why.
//
// The yielded Mat is reused between iterations; clone it to keep it.
// A Source can be ranged over only once; later ranges yield nothing.
func (s *Source) Frames(ctx context.Context) iter.Seq[gocv.Mat] {
	return func(yield func(gocv.Mat) bool) {
		if !s.started.CompareAndSwap(false, true) {
			return
		}

		handle, err := s.open(s.address)
		if err != nil {
			s.err = err
			logger.Log.Warnf("open stream %s: %v", s.address, err)
			return
		}
		defer func() {
			if err := handle.Close(); err != nil {
				logger.Log.Warnf("close stream %s: %v", s.address, err)
			}
		}()

		frame := gocv.NewMat()
		defer frame.Close()

		for {
			if ctx.Err() != nil {
				return
			}
			if ok := handle.Read(&frame); !ok || frame.Empty() {
				return
			}
			if !yield(frame) {
				return
			}
		}
	}
}

// Err returns the error that kept the stream from opening, if any.
func (s *Source) Err() error {
	return s.err
}

// EncodeJPEG encodes frame as a JPEG image.
func EncodeJPEG(frame gocv.Mat) ([]byte, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrEncode)
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	defer buf.Close()
	// GetBytes aliases native memory that Close frees.
	return bytes.Clone(buf.GetBytes()), nil
}
