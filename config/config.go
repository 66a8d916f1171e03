package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"camguard-backend/internal/logger"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Media      MediaConfig      `yaml:"media"`
	Auth       AuthConfig       `yaml:"auth"`
	Access     AccessConfig     `yaml:"access"`
	Motion     MotionConfig     `yaml:"motion"`
	Capture    CaptureConfig    `yaml:"capture"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port" env:"SERVER_PORT"`
	PublicBaseURL   string   `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
	Timezone        string   `yaml:"timezone"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	TrustedProxies  []string `yaml:"trusted_proxies"` // empty trusts no forwarding headers

	Location *time.Location `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" env:"DATABASE_DRIVER"` // postgres | sqlite
	DSN                    string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// MediaConfig points at the directory holding captured JPEGs.
type MediaConfig struct {
	Root string `yaml:"root" env:"MEDIA_ROOT"`
}

// AuthConfig holds session and login lockout settings.
type AuthConfig struct {
	Secret                string `yaml:"secret" env:"AUTH_SECRET"`
	SessionTTLMinutes     int    `yaml:"session_ttl_minutes"`
	CookieName            string `yaml:"cookie_name"`
	LockoutFailures       int    `yaml:"lockout_failures"`
	LockoutCooloffMinutes int    `yaml:"lockout_cooloff_minutes"`

	SessionTTL     time.Duration `yaml:"-"`
	LockoutCooloff time.Duration `yaml:"-"`
}

// AccessConfig controls camera access tokens.
type AccessConfig struct {
	DefaultLifetimeSeconds int   `yaml:"default_lifetime_seconds"`
	MaxLifetimeSeconds     int   `yaml:"max_lifetime_seconds"`
	SingleUse              *bool `yaml:"single_use"`
	AllowSessionStream     bool  `yaml:"allow_session_stream"`
}

// MotionConfig holds the motion detector tuning.
type MotionConfig struct {
	EnabledOnStream  *bool   `yaml:"enabled_on_stream"`
	BlurKernel       int     `yaml:"blur_kernel"`
	DeltaThreshold   float32 `yaml:"delta_threshold"`
	MinArea          float64 `yaml:"min_area"`
	DilateIterations int     `yaml:"dilate_iterations"`
	CooldownSeconds  int     `yaml:"cooldown_seconds"`

	Cooldown time.Duration `yaml:"-"`
}

// CaptureConfig sizes the motion capture worker pool.
type CaptureConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LoggingConfig selects the zap preset.
type LoggingConfig struct {
	Development bool `yaml:"development" env:"LOG_DEVELOPMENT"`
}

// PushEnabled reports whether both VAPID keys are present.
func (p PushConfig) PushEnabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// Load reads the configuration from the given path, overlays environment
// variables and fills in defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Server.Timezone == "" {
		cfg.Server.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		return fmt.Errorf("invalid server.timezone %q: %w", cfg.Server.Timezone, err)
	}
	cfg.Server.Location = loc
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	for _, p := range cfg.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("invalid server.trusted_proxies entry %q", p)
			}
		}
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "camguard.db"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Media.Root == "" {
		cfg.Media.Root = "./media"
	}

	if cfg.Auth.Secret == "" {
		logger.Log.Warnf("auth.secret is not set; sessions will not survive a restart")
		cfg.Auth.Secret = randomSecret()
	}
	if cfg.Auth.SessionTTLMinutes <= 0 {
		cfg.Auth.SessionTTLMinutes = 12 * 60
	}
	cfg.Auth.SessionTTL = time.Duration(cfg.Auth.SessionTTLMinutes) * time.Minute
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "camguard_session"
	}
	if cfg.Auth.LockoutFailures <= 0 {
		cfg.Auth.LockoutFailures = 5
	}
	if cfg.Auth.LockoutCooloffMinutes <= 0 {
		cfg.Auth.LockoutCooloffMinutes = 60
	}
	cfg.Auth.LockoutCooloff = time.Duration(cfg.Auth.LockoutCooloffMinutes) * time.Minute

	if cfg.Access.DefaultLifetimeSeconds <= 0 {
		cfg.Access.DefaultLifetimeSeconds = 300
	}
	if cfg.Access.MaxLifetimeSeconds <= 0 {
		cfg.Access.MaxLifetimeSeconds = 86400
	}
	if cfg.Access.SingleUse == nil {
		singleUse := true
		cfg.Access.SingleUse = &singleUse
	}

	if cfg.Motion.EnabledOnStream == nil {
		enabled := true
		cfg.Motion.EnabledOnStream = &enabled
	}
	if cfg.Motion.BlurKernel <= 0 || cfg.Motion.BlurKernel%2 == 0 {
		cfg.Motion.BlurKernel = 21
	}
	if cfg.Motion.DeltaThreshold <= 0 {
		cfg.Motion.DeltaThreshold = 30
	}
	if cfg.Motion.MinArea <= 0 {
		cfg.Motion.MinArea = 5000
	}
	if cfg.Motion.DilateIterations <= 0 {
		cfg.Motion.DilateIterations = 2
	}
	if cfg.Motion.CooldownSeconds <= 0 {
		cfg.Motion.CooldownSeconds = 5
	}
	cfg.Motion.Cooldown = time.Duration(cfg.Motion.CooldownSeconds) * time.Second

	if cfg.Capture.Workers <= 0 {
		cfg.Capture.Workers = 2
	}
	if cfg.Capture.QueueSize <= 0 {
		cfg.Capture.QueueSize = 32
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		logger.Log.Infof("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	return nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
