package vision

import (
	"fmt"
	"image"
	"iter"
	"time"

	"gocv.io/x/gocv"

	"camguard-backend/internal/logger"
)

// MotionConfig tunes the detector.
type MotionConfig struct {
	BlurKernel       int     // odd Gaussian kernel size
	DeltaThreshold   float32 // per-pixel difference counted as foreground
	MinArea          float64 // contour area that counts as motion
	DilateIterations int
	Cooldown         time.Duration // minimum gap between two captures
}

// DefaultMotionConfig returns the stock detector settings.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		BlurKernel:       21,
		DeltaThreshold:   30,
		MinArea:          5000,
		DilateIterations: 2,
		Cooldown:         5 * time.Second,
	}
}

// CaptureSink receives JPEG frames in which motion was detected.
type CaptureSink interface {
	SaveMotion(cameraID int64, jpeg []byte, at time.Time)
}

// Detector compares every frame against the first one it saw. The reference
// is never refreshed, so slow lighting drift eventually reads as motion.
//
// A Detector belongs to one stream and is not safe for concurrent use.
type Detector struct {
	cameraID int64
	cfg      MotionConfig
	sink     CaptureSink
	now      func() time.Time

	reference   gocv.Mat
	tracking    bool
	kernel      gocv.Mat
	lastCapture time.Time
}

// NewDetector creates a detector for cameraID. A nil now means time.Now.
func NewDetector(cameraID int64, cfg MotionConfig, sink CaptureSink, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{
		cameraID: cameraID,
		cfg:      cfg,
		sink:     sink,
		now:      now,
		kernel:   gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
	}
}

// Close frees the reference frame and kernel.
func (d *Detector) Close() {
	if d.tracking {
		d.reference.Close()
		d.tracking = false
	}
	d.kernel.Close()
}

// Tracking reports whether a reference frame has been stored.
func (d *Detector) Tracking() bool {
	return d.tracking
}

// Detect reports whether frame differs from the reference by at least one
// region larger than MinArea. The first frame becomes the reference.
func (d *Detector) Detect(frame gocv.Mat) (bool, error) {
	if frame.Empty() {
		return false, fmt.Errorf("empty frame")
	}

	gray := gocv.NewMat()
	switch frame.Channels() {
	case 1:
		frame.CopyTo(&gray)
	case 4:
		gocv.CvtColor(frame, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}
	k := d.cfg.BlurKernel
	gocv.GaussianBlur(gray, &gray, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	if !d.tracking {
		d.reference = gray
		d.tracking = true
		return false, nil
	}
	defer gray.Close()

	if gray.Rows() != d.reference.Rows() || gray.Cols() != d.reference.Cols() {
		return false, fmt.Errorf("frame size %dx%d differs from reference %dx%d",
			gray.Cols(), gray.Rows(), d.reference.Cols(), d.reference.Rows())
	}

	delta := gocv.NewMat()
	defer delta.Close()
	gocv.AbsDiff(d.reference, gray, &delta)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(delta, &mask, d.cfg.DeltaThreshold, 255, gocv.ThresholdBinary)
	for i := 0; i < d.cfg.DilateIterations; i++ {
		gocv.Dilate(mask, &mask, d.kernel)
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	for i := 0; i < contours.Size(); i++ {
		if gocv.ContourArea(contours.At(i)) > d.cfg.MinArea {
			return true, nil
		}
	}
	return false, nil
}

// Observe runs detection on frame and hands it to the sink when motion is
// found outside the cooldown window. Failures are logged and swallowed.
func (d *Detector) Observe(frame gocv.Mat) (captured bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("motion detection on camera %d panicked: %v", d.cameraID, r)
			captured = false
		}
	}()

	motion, err := d.Detect(frame)
	if err != nil {
		logger.Log.Warnf("motion detection on camera %d: %v", d.cameraID, err)
		return false
	}
	if !motion {
		return false
	}

	now := d.now()
	if !d.lastCapture.IsZero() && now.Sub(d.lastCapture) <= d.cfg.Cooldown {
		return false
	}

	jpeg, err := EncodeJPEG(frame)
	if err != nil {
		logger.Log.Warnf("encode motion frame for camera %d: %v", d.cameraID, err)
		return false
	}
	if d.sink != nil {
		d.sink.SaveMotion(d.cameraID, jpeg, now)
	}
	d.lastCapture = now
	logger.Log.Infof("motion detected on camera %d", d.cameraID)
	return true
}

// Watch passes frames through unchanged, observing each one on the way.
func (d *Detector) Watch(frames iter.Seq[gocv.Mat]) iter.Seq[gocv.Mat] {
	return func(yield func(gocv.Mat) bool) {
		for frame := range frames {
			d.Observe(frame)
			if !yield(frame) {
				return
			}
		}
	}
}
