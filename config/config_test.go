package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"camguard-backend/internal/logger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "America/Santiago", cfg.Server.Location.String())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
	assert.NotEmpty(t, cfg.Auth.Secret)
	assert.True(t, *cfg.Access.SingleUse)
	assert.False(t, cfg.Access.AllowSessionStream)
	assert.Equal(t, 5*time.Second, cfg.Motion.Cooldown)
	assert.False(t, cfg.Push.PushEnabled())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "http://localhost:8000", cfg.Server.PublicBaseURL)
	assert.Equal(t, time.UTC, cfg.Server.Location)
	assert.Equal(t, "camguard.db", cfg.Database.DSN)
	assert.Equal(t, "./media", cfg.Media.Root)
	assert.Equal(t, "camguard_session", cfg.Auth.CookieName)
	assert.Equal(t, 5, cfg.Auth.LockoutFailures)
	assert.Equal(t, time.Hour, cfg.Auth.LockoutCooloff)
	assert.Equal(t, 300, cfg.Access.DefaultLifetimeSeconds)
	assert.Equal(t, 86400, cfg.Access.MaxLifetimeSeconds)
	assert.True(t, *cfg.Access.SingleUse)
	assert.True(t, *cfg.Motion.EnabledOnStream)
	assert.Equal(t, 21, cfg.Motion.BlurKernel)
	assert.EqualValues(t, 30, cfg.Motion.DeltaThreshold)
	assert.EqualValues(t, 5000, cfg.Motion.MinArea)
	assert.Equal(t, 2, cfg.Motion.DilateIterations)
	assert.Equal(t, 2, cfg.Capture.Workers)
	assert.Equal(t, 32, cfg.Capture.QueueSize)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
}

func TestLoad_ExplicitFalseIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "access:\n  single_use: false\nmotion:\n  enabled_on_stream: false\n  blur_kernel: 20\n"))
	require.NoError(t, err)

	assert.False(t, *cfg.Access.SingleUse)
	assert.False(t, *cfg.Motion.EnabledOnStream)
	// Gaussian kernels must be odd.
	assert.Equal(t, 21, cfg.Motion.BlurKernel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "host=db user=camguard")
	t.Setenv("AUTH_SECRET", "from-env")
	t.Setenv("VAPID_PUBLIC_KEY", "pub")
	t.Setenv("VAPID_PRIVATE_KEY", "priv")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8000\nauth:\n  secret: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=db user=camguard", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.True(t, cfg.Push.PushEnabled())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }},
		{"bad yaml", func(t *testing.T) string { return writeConfig(t, "server: [\n") }},
		{"bad timezone", func(t *testing.T) string { return writeConfig(t, "server:\n  timezone: Mars/Olympus\n") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			assert.Error(t, err)
		})
	}
}

func TestLoad_WarnsAboutGeneratedSecret(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	previous := logger.Log
	logger.Log = zap.New(core).Sugar()
	t.Cleanup(func() { logger.Log = previous })

	cfg, err := Load(writeConfig(t, "auth:\n  secret: \"\"\n"))
	require.NoError(t, err)
	assert.Len(t, cfg.Auth.Secret, 64)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessageSnippet("auth.secret is not set").All()
	assert.Len(t, warnings, 1)
}

func TestLoad_RejectsInvalidTrustedProxy(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  trusted_proxies: [\"10.0.0.0/8\", \"not-an-ip\"]\n"))
	assert.ErrorContains(t, err, "not-an-ip")

	cfg, err := Load(writeConfig(t, "server:\n  trusted_proxies: [\"10.0.0.0/8\", \"192.0.2.1\"]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.Server.TrustedProxies)
}
