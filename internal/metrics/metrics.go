package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camguard_active_streams",
		Help: "Number of MJPEG streams currently being served",
	})

	FramesStreamed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camguard_frames_streamed_total",
		Help: "JPEG frames written to stream clients",
	}, []string{"camera_id"})

	Captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camguard_captures_total",
		Help: "Stored captures by source (manual or motion)",
	}, []string{"source"})

	CaptureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camguard_capture_failures_total",
		Help: "Captures that could not be stored, by source",
	}, []string{"source"})

	MotionDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camguard_motion_captures_dropped_total",
		Help: "Motion captures dropped because the capture queue was full",
	})

	AlertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camguard_motion_alerts_dropped_total",
		Help: "Motion alerts dropped because the notification queue was full",
	})

	TokenRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camguard_token_rejections_total",
		Help: "Stream access attempts rejected, by reason",
	}, []string{"reason"})
)
