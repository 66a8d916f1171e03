package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"camguard-backend/internal/logger"
	"camguard-backend/internal/metrics"
	"camguard-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender sends notifications through the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool fans motion alerts out to the subscribers of a camera.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	logger.Log.Debugf("notification worker %d started", id)
	for {
		select {
		case cameraID := <-wp.jobs:
			wp.notifyCamera(ctx, cameraID)
		case <-ctx.Done():
			logger.Log.Debugf("notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a motion alert for cameraID. It never blocks; when the
// queue is full the alert is dropped.
func (wp *WorkerPool) Dispatch(cameraID int64) {
	select {
	case wp.jobs <- cameraID:
	default:
		metrics.AlertsDropped.Inc()
		logger.Log.Warnf("notification queue full; dropping motion alert for camera %d", cameraID)
	}
}

// notifyCamera sends the motion alert to every subscriber of cameraID.
func (wp *WorkerPool) notifyCamera(ctx context.Context, cameraID int64) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_camera_mapping scm ON scm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("scm.camera_id = ?", cameraID).
		Find(&subscriptions).Error
	if err != nil {
		logger.Log.Errorf("fetch subscriptions for camera %d: %v", cameraID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	label := fmt.Sprintf("%d", cameraID)
	var camera model.Camera
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&camera, cameraID).Error; err != nil {
		logger.Log.Warnf("fetch camera %d: %v", cameraID, err)
	} else if camera.Name != "" {
		label = camera.Name
	}

	logger.Log.Infof("sending %d motion alerts for camera %s", len(subscriptions), label)
	message := fmt.Sprintf("Motion detected on camera %s", label)
	for _, sub := range subscriptions {
		wp.send(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		logger.Log.Warnf("send notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		logger.Log.Infof("subscription %s expired; deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			logger.Log.Warnf("delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
