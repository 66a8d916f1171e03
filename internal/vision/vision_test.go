package vision

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"camguard-backend/internal/model"
)

const (
	frameWidth  = 320
	frameHeight = 240
)

// blankFrame returns a black BGR frame.
func blankFrame(t *testing.T) gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), frameHeight, frameWidth, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

// blockFrame returns a black frame with a filled white square of side size.
func blockFrame(t *testing.T, size int) gocv.Mat {
	m := blankFrame(t).Clone()
	t.Cleanup(func() { m.Close() })
	gocv.Rectangle(&m, image.Rect(40, 40, 40+size, 40+size), color.RGBA{R: 255, G: 255, B: 255, A: 0}, -1)
	return m
}

// fakeHandle replays frames and counts closes.
type fakeHandle struct {
	frames []gocv.Mat
	reads  int
	closes int
}

func (h *fakeHandle) Read(m *gocv.Mat) bool {
	if h.reads >= len(h.frames) {
		return false
	}
	h.frames[h.reads].CopyTo(m)
	h.reads++
	return true
}

func (h *fakeHandle) Close() error {
	h.closes++
	return nil
}

func openerFor(h *fakeHandle, opens *int) Opener {
	return func(string) (Handle, error) {
		if opens != nil {
			*opens++
		}
		return h, nil
	}
}

func failingOpener(string) (Handle, error) {
	return nil, errors.New("connection refused")
}

func TestSource_EmptyWhenOpenFails(t *testing.T) {
	src := NewSource("rtsp://nowhere", failingOpener)

	count := 0
	for range src.Frames(context.Background()) {
		count++
	}
	assert.Zero(t, count)
	assert.Error(t, src.Err())
}

func TestSource_ReleasesExactlyOnce(t *testing.T) {
	testCases := []struct {
		name     string
		frames   int
		stopAt   int // consumer breaks after this many frames; 0 = never
		cancelAt int // context cancelled after this many frames; 0 = never
		expected int
	}{
		{name: "end of stream", frames: 3, expected: 3},
		{name: "consumer stops", frames: 5, stopAt: 1, expected: 1},
		{name: "context cancelled", frames: 5, cancelAt: 2, expected: 2},
		{name: "no frames at all", frames: 0, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := &fakeHandle{}
			for i := 0; i < tc.frames; i++ {
				h.frames = append(h.frames, blankFrame(t))
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			got := 0
			for frame := range NewSource("rtsp://cam", openerFor(h, nil)).Frames(ctx) {
				got++
				assert.False(t, frame.Empty())
				if got == tc.stopAt {
					break
				}
				if got == tc.cancelAt {
					cancel()
				}
			}

			assert.Equal(t, tc.expected, got)
			assert.Equal(t, 1, h.closes)
		})
	}
}

func TestSource_SingleUse(t *testing.T) {
	h := &fakeHandle{frames: []gocv.Mat{blankFrame(t)}}
	opens := 0
	src := NewSource("rtsp://cam", openerFor(h, &opens))

	first, second := 0, 0
	for range src.Frames(context.Background()) {
		first++
	}
	for range src.Frames(context.Background()) {
		second++
	}
	assert.Equal(t, 1, first)
	assert.Zero(t, second)
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, h.closes)
}

func TestEncodeJPEG(t *testing.T) {
	jpeg, err := EncodeJPEG(blockFrame(t, 60))
	require.NoError(t, err)
	require.Greater(t, len(jpeg), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, jpeg[:2])

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = EncodeJPEG(empty)
	assert.ErrorIs(t, err, ErrEncode)
}

type capturedFrame struct {
	cameraID int64
	size     int
	at       time.Time
}

type recordingSink struct {
	mu       sync.Mutex
	captures []capturedFrame
}

func (s *recordingSink) SaveMotion(cameraID int64, jpeg []byte, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures = append(s.captures, capturedFrame{cameraID: cameraID, size: len(jpeg), at: at})
}

func (s *recordingSink) all() []capturedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedFrame(nil), s.captures...)
}

func TestDetector_IdenticalFramesNeverMove(t *testing.T) {
	sink := &recordingSink{}
	det := NewDetector(1, DefaultMotionConfig(), sink, nil)
	defer det.Close()

	frame := blockFrame(t, 80)
	for i := 0; i < 5; i++ {
		motion, err := det.Detect(frame)
		require.NoError(t, err)
		assert.False(t, motion)
	}
	assert.True(t, det.Tracking())
	assert.Empty(t, sink.all())
}

func TestDetector_Threshold(t *testing.T) {
	testCases := []struct {
		name     string
		block    int
		expected bool
	}{
		{name: "large block is motion", block: 120, expected: true},
		{name: "small block is noise", block: 30, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			det := NewDetector(1, DefaultMotionConfig(), nil, nil)
			defer det.Close()

			motion, err := det.Detect(blankFrame(t))
			require.NoError(t, err)
			assert.False(t, motion, "first frame only sets the reference")

			motion, err = det.Detect(blockFrame(t, tc.block))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, motion)
		})
	}
}

func TestDetector_CooldownLimitsCaptures(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := start
	sink := &recordingSink{}
	det := NewDetector(42, DefaultMotionConfig(), sink, func() time.Time { return now })
	defer det.Close()

	assert.False(t, det.Observe(blankFrame(t)))

	moving := blockFrame(t, 120)
	for second := 1; second <= 12; second++ {
		now = start.Add(time.Duration(second) * time.Second)
		det.Observe(moving)
	}

	captures := sink.all()
	require.Len(t, captures, 2)
	assert.Equal(t, start.Add(1*time.Second), captures[0].at)
	assert.Equal(t, start.Add(7*time.Second), captures[1].at)
	for i, c := range captures {
		assert.Equal(t, int64(42), c.cameraID)
		assert.Positive(t, c.size)
		if i > 0 {
			assert.Greater(t, c.at.Sub(captures[i-1].at), 5*time.Second)
		}
	}
}

func TestDetector_FailuresDoNotStopTheStream(t *testing.T) {
	sink := &recordingSink{}
	det := NewDetector(1, DefaultMotionConfig(), sink, nil)
	defer det.Close()

	small := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 10, 10, gocv.MatTypeCV8UC3)
	defer small.Close()

	h := &fakeHandle{frames: []gocv.Mat{blankFrame(t), small, blockFrame(t, 120)}}
	seen := 0
	for range det.Watch(NewSource("rtsp://cam", openerFor(h, nil)).Frames(context.Background())) {
		seen++
	}

	assert.Equal(t, 3, seen)
	assert.Len(t, sink.all(), 1)
	assert.Equal(t, 1, h.closes)
}

func TestFeed_JPEGFrames(t *testing.T) {
	h := &fakeHandle{frames: []gocv.Mat{blankFrame(t), blockFrame(t, 120), blockFrame(t, 120)}}
	sink := &recordingSink{}
	feed := NewFeed(openerFor(h, nil), DefaultMotionConfig(), sink)

	var frames [][]byte
	for jpeg := range feed.JPEGFrames(context.Background(), model.Camera{ID: 9, StreamAddress: "rtsp://cam"}, true) {
		frames = append(frames, jpeg)
	}

	assert.Len(t, frames, 3)
	for _, f := range frames {
		assert.Equal(t, []byte{0xFF, 0xD8}, f[:2])
	}
	captures := sink.all()
	require.Len(t, captures, 1)
	assert.Equal(t, int64(9), captures[0].cameraID)
	assert.Equal(t, 1, h.closes)
}

func TestFeed_JPEGFramesConsumerStops(t *testing.T) {
	h := &fakeHandle{frames: []gocv.Mat{blankFrame(t), blankFrame(t), blankFrame(t)}}
	feed := NewFeed(openerFor(h, nil), DefaultMotionConfig(), nil)

	for range feed.JPEGFrames(context.Background(), model.Camera{ID: 1}, false) {
		break
	}
	assert.Equal(t, 1, h.reads)
	assert.Equal(t, 1, h.closes)
}

func TestFeed_Snapshot(t *testing.T) {
	t.Run("reads exactly one frame", func(t *testing.T) {
		h := &fakeHandle{frames: []gocv.Mat{blankFrame(t), blankFrame(t)}}
		feed := NewFeed(openerFor(h, nil), DefaultMotionConfig(), nil)

		jpeg, err := feed.Snapshot(context.Background(), "rtsp://cam")
		require.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 0xD8}, jpeg[:2])
		assert.Equal(t, 1, h.reads)
		assert.Equal(t, 1, h.closes)
	})

	t.Run("source fails to open", func(t *testing.T) {
		feed := NewFeed(failingOpener, DefaultMotionConfig(), nil)
		_, err := feed.Snapshot(context.Background(), "rtsp://nowhere")
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	})

	t.Run("source yields nothing", func(t *testing.T) {
		h := &fakeHandle{}
		feed := NewFeed(openerFor(h, nil), DefaultMotionConfig(), nil)
		_, err := feed.Snapshot(context.Background(), "rtsp://cam")
		assert.ErrorIs(t, err, ErrNoFrame)
		assert.Equal(t, 1, h.closes)
	})
}
