package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"camguard-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	Ping(ctx context.Context) error

	CreateCamera(ctx context.Context, cam *model.Camera) error
	GetCamera(ctx context.Context, id int64) (model.Camera, error)
	ListCameras(ctx context.Context) ([]CameraSummary, error)
	DeleteCamera(ctx context.Context, id int64) ([]string, error)

	CreateToken(ctx context.Context, tok *model.AccessToken) error
	FindToken(ctx context.Context, cameraID int64, token string) (model.AccessToken, error)
	MarkTokenUsed(ctx context.Context, id int64) (bool, error)

	CreateCapture(ctx context.Context, c *model.Capture) error
	ListCaptures(ctx context.Context, f CaptureFilter) ([]model.Capture, error)

	CreateUser(ctx context.Context, u *model.User) error
	FindUserByUsername(ctx context.Context, username string) (model.User, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription, cameraIDs []int64) error
	GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateCamera inserts a camera, rejecting names that are already taken.
func (s *gormStore) CreateCamera(ctx context.Context, cam *model.Camera) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Camera{}).Where("name = ?", cam.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrCameraExists
		}
		return tx.Create(cam).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrCameraExists
	}
	if err != nil && !errors.Is(err, ErrCameraExists) {
		return fmt.Errorf("failed to create camera: %w", err)
	}
	return err
}

func (s *gormStore) GetCamera(ctx context.Context, id int64) (model.Camera, error) {
	var cam model.Camera
	if err := s.db.WithContext(ctx).First(&cam, id).Error; err != nil {
		return model.Camera{}, notFound(err)
	}
	return cam, nil
}

// ListCameras returns every camera, newest first, with its latest capture.
func (s *gormStore) ListCameras(ctx context.Context) ([]CameraSummary, error) {
	var cameras []model.Camera
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&cameras).Error; err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}

	var latest []model.Capture
	err := s.db.WithContext(ctx).
		Where("captures.created_at = (SELECT MAX(c2.created_at) FROM captures c2 WHERE c2.camera_id = captures.camera_id)").
		Order("id DESC").
		Find(&latest).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest captures: %w", err)
	}

	latestMap := make(map[int64]model.Capture, len(latest))
	for _, c := range latest {
		if _, ok := latestMap[c.CameraID]; !ok {
			latestMap[c.CameraID] = c
		}
	}

	summaries := make([]CameraSummary, 0, len(cameras))
	for _, cam := range cameras {
		summary := CameraSummary{Camera: cam}
		if c, ok := latestMap[cam.ID]; ok {
			summary.LastCapture = &c
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// DeleteCamera removes a camera with its tokens, captures and subscription
// links in one transaction. It returns the image paths of the removed captures.
func (s *gormStore) DeleteCamera(ctx context.Context, id int64) ([]string, error) {
	var paths []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cam model.Camera
		if err := tx.Select("id").First(&cam, id).Error; err != nil {
			return notFound(err)
		}

		if err := tx.Model(&model.Capture{}).Where("camera_id = ?", id).Pluck("image_path", &paths).Error; err != nil {
			return err
		}
		if err := tx.Where("camera_id = ?", id).Delete(&model.Capture{}).Error; err != nil {
			return err
		}
		if err := tx.Where("camera_id = ?", id).Delete(&model.AccessToken{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM subscription_camera_mapping WHERE camera_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Camera{}, id).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to delete camera %d: %w", id, err)
	}
	return paths, nil
}

// CreateToken persists a token. A token string collision surfaces as an error.
func (s *gormStore) CreateToken(ctx context.Context, tok *model.AccessToken) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(tok).Error; err != nil {
		return fmt.Errorf("failed to create access token: %w", err)
	}
	return nil
}

func (s *gormStore) FindToken(ctx context.Context, cameraID int64, token string) (model.AccessToken, error) {
	var tok model.AccessToken
	err := s.db.WithContext(ctx).
		Where("camera_id = ? AND token = ?", cameraID, token).
		First(&tok).Error
	if err != nil {
		return model.AccessToken{}, notFound(err)
	}
	return tok, nil
}

// MarkTokenUsed flips used to true only if it is still false. It reports
// whether this call performed the flip.
func (s *gormStore) MarkTokenUsed(ctx context.Context, id int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.AccessToken{}).
		Where("id = ? AND used = ?", id, false).
		Update("used", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark token %d used: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) CreateCapture(ctx context.Context, c *model.Capture) error {
	c.CreatedAt = c.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create capture: %w", err)
	}
	return nil
}

// ListCaptures returns captures matching f, most recent first.
func (s *gormStore) ListCaptures(ctx context.Context, f CaptureFilter) ([]model.Capture, error) {
	q := s.db.WithContext(ctx).Preload("Camera")
	if f.CameraID != nil {
		q = q.Where("camera_id = ?", *f.CameraID)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", f.To.UTC())
	}

	var captures []model.Capture
	if err := q.Order("created_at DESC, id DESC").Find(&captures).Error; err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	return captures, nil
}

func (s *gormStore) CreateUser(ctx context.Context, u *model.User) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("username = ?", u.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserExists
		}
		return tx.Create(u).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrUserExists
	}
	if err != nil && !errors.Is(err, ErrUserExists) {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return err
}

func (s *gormStore) FindUserByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return model.User{}, notFound(err)
	}
	return u, nil
}

// SaveSubscription upserts a push subscription and replaces its camera set.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription, cameraIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Omit(clause.Associations).Create(sub).Error; err != nil {
			return err
		}

		cameras := []*model.Camera{}
		if len(cameraIDs) > 0 {
			if err := tx.Find(&cameras, cameraIDs).Error; err != nil {
				return err
			}
		}

		return tx.Model(sub).Association("Cameras").Replace(cameras)
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Cameras").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return model.PushSubscription{}, notFound(err)
	}
	return sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(&sub).Association("Cameras").Clear(); err != nil {
			return err
		}
		return tx.Delete(&sub).Error
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
