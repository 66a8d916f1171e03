package api

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"camguard-backend/config"
	"camguard-backend/internal/access"
	"camguard-backend/internal/auth"
	"camguard-backend/internal/model"
	"camguard-backend/internal/store"
)

// FrameFeed streams a camera as JPEG frames.
type FrameFeed interface {
	JPEGFrames(ctx context.Context, cam model.Camera, detectMotion bool) iter.Seq[[]byte]
}

// Capturer takes manual captures and removes cameras with their files.
type Capturer interface {
	CaptureNow(ctx context.Context, cam model.Camera) (model.Capture, error)
	DeleteCamera(ctx context.Context, id int64) error
}

// Dependencies are the services the handlers call into.
type Dependencies struct {
	Store    store.Store
	Auth     *auth.Service
	Issuer   *access.Issuer
	Feed     FrameFeed
	Captures Capturer
	WebPush  *webpush.Options
}

// Options are the request-handling settings.
type Options struct {
	CookieName             string
	SessionTTL             time.Duration
	PublicBaseURL          string
	Location               *time.Location
	DefaultLifetimeSeconds int
	MaxLifetimeSeconds     int
	AllowSessionStream     bool
	DetectMotion           bool
	MediaRoot              string
	RateLimitPerSec        float64
	RateLimitBurst         int
	TrustedProxies         []string
	LockoutFailures        int
	LockoutCooloff         time.Duration
}

// OptionsFromConfig maps the loaded configuration onto handler options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CookieName:             cfg.Auth.CookieName,
		SessionTTL:             cfg.Auth.SessionTTL,
		PublicBaseURL:          cfg.Server.PublicBaseURL,
		Location:               cfg.Server.Location,
		DefaultLifetimeSeconds: cfg.Access.DefaultLifetimeSeconds,
		MaxLifetimeSeconds:     cfg.Access.MaxLifetimeSeconds,
		AllowSessionStream:     cfg.Access.AllowSessionStream,
		DetectMotion:           cfg.Motion.EnabledOnStream != nil && *cfg.Motion.EnabledOnStream,
		MediaRoot:              cfg.Media.Root,
		RateLimitPerSec:        cfg.Server.RateLimitPerSec,
		RateLimitBurst:         cfg.Server.RateLimitBurst,
		TrustedProxies:         cfg.Server.TrustedProxies,
		LockoutFailures:        cfg.Auth.LockoutFailures,
		LockoutCooloff:         cfg.Auth.LockoutCooloff,
	}
}

func (o Options) withDefaults() Options {
	if o.CookieName == "" {
		o.CookieName = "camguard_session"
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 12 * time.Hour
	}
	o.PublicBaseURL = strings.TrimRight(o.PublicBaseURL, "/")
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.DefaultLifetimeSeconds <= 0 {
		o.DefaultLifetimeSeconds = int(access.DefaultLifetime / time.Second)
	}
	if o.MaxLifetimeSeconds <= 0 {
		o.MaxLifetimeSeconds = 86400
	}
	if o.MediaRoot == "" {
		o.MediaRoot = "./media"
	}
	if o.RateLimitPerSec <= 0 {
		o.RateLimitPerSec = 10
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 20
	}
	if o.LockoutFailures <= 0 {
		o.LockoutFailures = 5
	}
	if o.LockoutCooloff <= 0 {
		o.LockoutCooloff = time.Hour
	}
	return o
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	auth     *auth.Service
	issuer   *access.Issuer
	feed     FrameFeed
	captures Capturer
	webpush  *webpush.Options
	opts     Options
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, opts Options) *Handler {
	useFormFieldNames()
	return &Handler{
		store:    deps.Store,
		auth:     deps.Auth,
		issuer:   deps.Issuer,
		feed:     deps.Feed,
		captures: deps.Captures,
		webpush:  deps.WebPush,
		opts:     opts.withDefaults(),
	}
}
