package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"camguard-backend/config"
	"camguard-backend/internal/access"
	"camguard-backend/internal/api"
	"camguard-backend/internal/auth"
	"camguard-backend/internal/capture"
	"camguard-backend/internal/db"
	"camguard-backend/internal/logger"
	"camguard-backend/internal/notification"
	"camguard-backend/internal/store"
	"camguard-backend/internal/vision"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	// Production preset until the configuration names one.
	if err := logger.Init(false); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	if cfg.Logging.Development {
		if err := logger.Init(true); err != nil {
			logger.Log.Fatalf("failed to initialize development logger: %v", err)
		}
	}
	defer logger.Sync()
	logger.Log.Infof("configuration loaded successfully from %s", configPath)

	if err := os.MkdirAll(cfg.Media.Root, 0o755); err != nil {
		logger.Log.Fatalf("failed to create media root %s: %v", cfg.Media.Root, err)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Log.Fatalf("failed to initialize database: %v", err)
	}
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Motion alerts are optional; without VAPID keys captures are still stored.
	var (
		webpushOptions *webpush.Options
		notifier       capture.Notifier
	)
	if cfg.Push.PushEnabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		notifications := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		notifications.Start(ctx)
		notifier = notifications
		logger.Log.Infof("web push enabled with %d workers", cfg.WorkerPool.Size)
	} else {
		logger.Log.Warnf("VAPID keys are not configured; motion alerts are disabled")
	}

	motion := vision.MotionConfig{
		BlurKernel:       cfg.Motion.BlurKernel,
		DeltaThreshold:   cfg.Motion.DeltaThreshold,
		MinArea:          cfg.Motion.MinArea,
		DilateIterations: cfg.Motion.DilateIterations,
		Cooldown:         cfg.Motion.Cooldown,
	}

	// Manual captures read straight from the camera; streamed frames feed
	// motion captures into the worker pool.
	captures := capture.NewService(appStore, vision.NewFeed(nil, motion, nil), cfg.Media.Root)
	capturePool := capture.NewPool(cfg.Capture.Workers, cfg.Capture.QueueSize, captures, notifier)
	capturePool.Start(ctx)

	router := api.NewRouter(api.Dependencies{
		Store:    appStore,
		Auth:     auth.NewService(appStore, cfg.Auth.Secret, cfg.Auth.SessionTTL),
		Issuer:   access.NewIssuer(appStore, access.WithSingleUse(*cfg.Access.SingleUse)),
		Feed:     vision.NewFeed(nil, motion, capturePool),
		Captures: captures,
		WebPush:  webpushOptions,
	}, api.OptionsFromConfig(cfg))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		logger.Log.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Log.Infof("shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("HTTP server Shutdown: %v", err)
	}

	cancel()
	capturePool.Wait()
	logger.Log.Infof("server gracefully stopped")
}
