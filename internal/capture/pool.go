package capture

import (
	"context"
	"sync"
	"time"

	"camguard-backend/internal/logger"
	"camguard-backend/internal/metrics"
)

// Notifier is told about every stored motion capture.
type Notifier interface {
	Dispatch(cameraID int64)
}

type motionJob struct {
	cameraID int64
	jpeg     []byte
	at       time.Time
}

// Pool stores motion captures off the streaming path.
type Pool struct {
	size     int
	jobs     chan motionJob
	svc      *Service
	notifier Notifier
	wg       sync.WaitGroup
}

// NewPool creates a pool of size workers with a queue of queueSize pending
// captures. notifier may be nil.
func NewPool(size, queueSize int, svc *Service, notifier Notifier) *Pool {
	return &Pool{
		size:     size,
		jobs:     make(chan motionJob, queueSize),
		svc:      svc,
		notifier: notifier,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger.Log.Debugf("capture worker %d started", id)
	for {
		select {
		case job := <-p.jobs:
			p.store(ctx, job)
		case <-ctx.Done():
			logger.Log.Debugf("capture worker %d shutting down", id)
			return
		}
	}
}

func (p *Pool) store(ctx context.Context, job motionJob) {
	c, err := p.svc.Save(ctx, job.cameraID, job.jpeg, job.at)
	if err != nil {
		metrics.CaptureFailures.WithLabelValues(SourceMotion).Inc()
		logger.Log.Errorf("store motion capture for camera %d: %v", job.cameraID, err)
		return
	}
	metrics.Captures.WithLabelValues(SourceMotion).Inc()
	logger.Log.Infof("stored motion capture %d for camera %d", c.ID, job.cameraID)

	if p.notifier != nil {
		p.notifier.Dispatch(job.cameraID)
	}
}

// SaveMotion queues a motion capture. It never blocks the caller; when the
// queue is full the capture is dropped.
func (p *Pool) SaveMotion(cameraID int64, jpeg []byte, at time.Time) {
	select {
	case p.jobs <- motionJob{cameraID: cameraID, jpeg: jpeg, at: at}:
	default:
		metrics.MotionDropped.Inc()
		logger.Log.Warnf("capture queue full; dropping motion capture for camera %d", cameraID)
	}
}
