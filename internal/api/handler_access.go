package api

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"camguard-backend/internal/logger"
	"camguard-backend/internal/parse"
)

type accessLinkResponse struct {
	CameraID   int64     `json:"camera_id"`
	CameraName string    `json:"camera_name"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	StreamURL  string    `json:"stream_url"`
}

// GenerateQR issues a fresh access token for a camera and returns the stream
// link a client encodes into a QR code.
func (h *Handler) GenerateQR(c *gin.Context) {
	cam, ok := h.camera(c)
	if !ok {
		return
	}

	lifetime, err := parse.Lifetime(c.Query("lifetime_seconds"), h.opts.DefaultLifetimeSeconds, h.opts.MaxLifetimeSeconds)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	tok, err := h.issuer.Issue(c.Request.Context(), cam.ID, lifetime)
	if err != nil {
		logger.Log.Errorf("issue token for camera %d: %v", cam.ID, err)
		abortError(c, http.StatusInternalServerError, "could not issue access token")
		return
	}

	c.JSON(http.StatusOK, accessLinkResponse{
		CameraID:   cam.ID,
		CameraName: cam.Name,
		Token:      tok.Token,
		ExpiresAt:  tok.ExpiresAt,
		StreamURL:  h.opts.PublicBaseURL + streamPath("/stream/", cam.ID, tok.Token),
	})
}

func streamPath(base string, cameraID int64, token string) string {
	q := url.Values{}
	q.Set("camera", fmt.Sprint(cameraID))
	if token != "" {
		q.Set("token", token)
	}
	return base + "?" + q.Encode()
}
