package internal

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camguard-backend/internal/access"
	"camguard-backend/internal/api"
	"camguard-backend/internal/auth"
	"camguard-backend/internal/capture"
	"camguard-backend/internal/model"
	"camguard-backend/internal/notification"
	"camguard-backend/internal/store"
	"camguard-backend/internal/testutil"
)

// motionFeed plays back fixed frames and reports motion on the last one, the
// way the detector hands a frame to the capture pool.
type motionFeed struct {
	frames [][]byte
	sink   *capture.Pool
}

func (f *motionFeed) JPEGFrames(_ context.Context, cam model.Camera, detectMotion bool) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for i, frame := range f.frames {
			if detectMotion && i == len(f.frames)-1 {
				f.sink.SaveMotion(cam.ID, frame, time.Now())
			}
			if !yield(frame) {
				return
			}
		}
	}
}

type unusedSnapshotter struct{}

func (unusedSnapshotter) Snapshot(context.Context, string) ([]byte, error) {
	return []byte("manual"), nil
}

// browserKeys returns a push subscription key pair as a browser would send it.
func browserKeys(t *testing.T) (p256dh, authSecret string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

// TestMotionAlertLifecycle walks a camera from registration through a
// token-gated stream whose motion capture is stored and pushed to a
// subscriber, then deletes it again.
func TestMotionAlertLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// --- Test Setup ---

	// 1. Isolated in-memory database and media root.
	gormDB := testutil.NewSQLite(t)
	appStore := store.NewGormStore(gormDB)
	media := t.TempDir()

	// 2. A push service that records what it receives.
	var pushes atomic.Int32
	pushServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") == "aes128gcm" && strings.HasPrefix(r.Header.Get("Authorization"), "vapid ") {
			pushes.Add(1)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushServer.Close()

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		Subscriber:      "ops@camguard.test",
		TTL:             60,
	}

	// 3. Wire the services the way the daemon does.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifications := notification.NewWorkerPool(1, gormDB, webpushOptions)
	notifications.Start(ctx)

	captures := capture.NewService(appStore, unusedSnapshotter{}, media)
	pool := capture.NewPool(1, 8, captures, notifications)
	pool.Start(ctx)

	feed := &motionFeed{frames: [][]byte{[]byte("frame-1"), []byte("frame-2")}, sink: pool}
	router := api.NewRouter(api.Dependencies{
		Store:    appStore,
		Auth:     auth.NewService(appStore, "integration-secret", time.Hour),
		Issuer:   access.NewIssuer(appStore),
		Feed:     feed,
		Captures: captures,
		WebPush:  webpushOptions,
	}, api.Options{
		PublicBaseURL:   "http://cams.test",
		MediaRoot:       media,
		DetectMotion:    true,
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
	})

	var session *http.Cookie
	do := func(method, target, contentType, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if session != nil {
			req.AddCookie(session)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}
	const form = "application/x-www-form-urlencoded"

	// --- Test Execution ---

	// 4. Register an operator; the response carries the session cookie.
	w := do(http.MethodPost, "/registro/", form, url.Values{
		"username":         {"operator"},
		"email":            {"operator@camguard.test"},
		"password":         {"hunter22"},
		"confirm_password": {"hunter22"},
	}.Encode())
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	require.Len(t, w.Result().Cookies(), 1)
	session = w.Result().Cookies()[0]

	// 5. Register the camera.
	w = do(http.MethodPost, "/add_camera/", form, url.Values{
		"name":        {"Lobby"},
		"rtsp_url":    {"rtsp://cam1"},
		"description": {"front door"},
	}.Encode())
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	var cameraID int64
	_, err = fmt.Sscanf(w.Header().Get("Location"), "/generate_qr/%d/", &cameraID)
	require.NoError(t, err)

	// 6. Subscribe a browser to the camera's motion alerts.
	p256dh, authSecret := browserKeys(t)
	endpoint := pushServer.URL + "/push/operator"
	body, err := json.Marshal(map[string]any{"endpoint": endpoint, "p256dh": p256dh, "auth": authSecret, "cameras": []int64{cameraID}})
	require.NoError(t, err)
	w = do(http.MethodPut, "/api/subscriptions", "application/json", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// 7. Issue a share link and open the stream it points at.
	w = do(http.MethodGet, fmt.Sprintf("/generate_qr/%d/", cameraID), "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var link struct {
		Token     string `json:"token"`
		StreamURL string `json:"stream_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))

	streamURL, err := url.Parse(link.StreamURL)
	require.NoError(t, err)
	w = do(http.MethodGet, streamURL.RequestURI(), "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	feedPath := "/mjpeg_feed/?" + streamURL.RawQuery
	w = do(http.MethodGet, feedPath, "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, strings.Count(w.Body.String(), "--frame\r\n"))

	// --- Assertions ---

	// 8. The motion frame is stored and the subscriber is alerted.
	assert.Eventually(t, func() bool {
		var count int64
		gormDB.Model(&model.Capture{}).Where("camera_id = ?", cameraID).Count(&count)
		return count == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return pushes.Load() == 1 }, 5*time.Second, 20*time.Millisecond)

	w = do(http.MethodGet, fmt.Sprintf("/captures/?camera=%d", cameraID), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var gallery []struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gallery))
	require.Len(t, gallery, 1)
	stored := filepath.Join(media, filepath.FromSlash(strings.TrimPrefix(gallery[0].URL, "/media/")))
	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	assert.Equal(t, "frame-2", string(data))

	// 9. The share link was single use.
	w = do(http.MethodGet, feedPath, "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 10. Deleting the camera removes its tokens, captures and files.
	w = do(http.MethodPost, fmt.Sprintf("/delete_camera/%d/", cameraID), "", "")
	require.Equal(t, http.StatusSeeOther, w.Code)

	var tokens, rows int64
	require.NoError(t, gormDB.Model(&model.AccessToken{}).Count(&tokens).Error)
	require.NoError(t, gormDB.Model(&model.Capture{}).Count(&rows).Error)
	assert.Zero(t, tokens)
	assert.Zero(t, rows)
	_, err = os.Stat(stored)
	assert.True(t, os.IsNotExist(err))

	cancel()
	pool.Wait()
}
