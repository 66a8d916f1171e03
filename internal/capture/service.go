package capture

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"camguard-backend/internal/logger"
	"camguard-backend/internal/metrics"
	"camguard-backend/internal/model"
)

// Dir is the media sub-directory holding capture files.
const Dir = "captures"

const (
	SourceManual = "manual"
	SourceMotion = "motion"
)

// Snapshotter grabs a single encoded frame from a stream address.
type Snapshotter interface {
	Snapshot(ctx context.Context, address string) ([]byte, error)
}

// Store is the persistence the capture service needs.
type Store interface {
	CreateCapture(ctx context.Context, c *model.Capture) error
	DeleteCamera(ctx context.Context, id int64) ([]string, error)
}

// Service writes capture files under the media root and records them.
type Service struct {
	store     Store
	snap      Snapshotter
	mediaRoot string
	now       func() time.Time
}

// NewService creates a capture service rooted at mediaRoot.
func NewService(s Store, snap Snapshotter, mediaRoot string) *Service {
	return &Service{store: s, snap: snap, mediaRoot: mediaRoot, now: time.Now}
}

// CaptureNow reads one frame from cam and stores it. Nothing is recorded when
// the frame cannot be obtained.
func (s *Service) CaptureNow(ctx context.Context, cam model.Camera) (model.Capture, error) {
	jpeg, err := s.snap.Snapshot(ctx, cam.StreamAddress)
	if err != nil {
		metrics.CaptureFailures.WithLabelValues(SourceManual).Inc()
		return model.Capture{}, fmt.Errorf("capture camera %d: %w", cam.ID, err)
	}

	c, err := s.Save(ctx, cam.ID, jpeg, s.now())
	if err != nil {
		metrics.CaptureFailures.WithLabelValues(SourceManual).Inc()
		return model.Capture{}, err
	}
	metrics.Captures.WithLabelValues(SourceManual).Inc()
	return c, nil
}

// Save writes jpeg to disk and records it for cameraID. The file is removed
// again if the row cannot be inserted.
func (s *Service) Save(ctx context.Context, cameraID int64, jpeg []byte, at time.Time) (model.Capture, error) {
	const op = "capture.Save"

	rel := path.Join(Dir, fmt.Sprintf("capture_camera_%d_%s.jpg", cameraID, uuid.NewString()))
	abs := s.absPath(rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return model.Capture{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := os.WriteFile(abs, jpeg, 0o644); err != nil {
		return model.Capture{}, fmt.Errorf("%s: %w", op, err)
	}

	c := model.Capture{CameraID: cameraID, ImagePath: rel, CreatedAt: at}
	if err := s.store.CreateCapture(ctx, &c); err != nil {
		if rmErr := os.Remove(abs); rmErr != nil {
			logger.Log.Warnf("remove orphaned capture %s: %v", abs, rmErr)
		}
		return model.Capture{}, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// DeleteCamera removes the camera with everything it owns, then its capture
// files. File removal is best effort.
func (s *Service) DeleteCamera(ctx context.Context, id int64) error {
	paths, err := s.store.DeleteCamera(ctx, id)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(s.absPath(p)); err != nil && !os.IsNotExist(err) {
			logger.Log.Warnf("remove capture file %s: %v", p, err)
		}
	}
	logger.Log.Infof("deleted camera %d and %d capture files", id, len(paths))
	return nil
}

// URL is the public path of a capture under the media route.
func URL(c model.Capture) string {
	return "/media/" + c.ImagePath
}

func (s *Service) absPath(rel string) string {
	return filepath.Join(s.mediaRoot, filepath.FromSlash(rel))
}
