package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"camguard-backend/internal/access"
	"camguard-backend/internal/logger"
	"camguard-backend/internal/metrics"
	"camguard-backend/internal/model"
	"camguard-backend/internal/mw"
	"camguard-backend/internal/parse"
)

const mjpegBoundary = "frame"

// Stream renders the viewer page for a camera. The token is checked but not
// spent; the embedded feed request spends it.
func (h *Handler) Stream(c *gin.Context) {
	cam, token, ok := h.authorizeStream(c, false)
	if !ok {
		return
	}

	c.HTML(http.StatusOK, "stream.html", gin.H{
		"Name":    cam.Name,
		"FeedURL": streamPath("/mjpeg_feed/", cam.ID, token),
	})
}

// MJPEGFeed streams the camera as multipart JPEG until the client goes away
// or the source runs dry.
func (h *Handler) MJPEGFeed(c *gin.Context) {
	cam, _, ok := h.authorizeStream(c, true)
	if !ok {
		return
	}

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Status(http.StatusOK)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()
	streamed := metrics.FramesStreamed.WithLabelValues(strconv.FormatInt(cam.ID, 10))

	log := logger.With("camera_id", cam.ID, "remote", c.ClientIP())
	var n int
	for jpeg := range h.feed.JPEGFrames(c.Request.Context(), cam, h.opts.DetectMotion) {
		if err := writeMJPEGPart(c.Writer, jpeg); err != nil {
			log.Debugf("client gone after %d frames: %v", n, err)
			return
		}
		c.Writer.Flush()
		streamed.Inc()
		n++
	}
	log.Infof("stream ended after %d frames", n)
}

func writeMJPEGPart(w io.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// authorizeStream resolves the camera query parameter and checks the access
// token. With consume set, a single-use token is spent. It answers the
// request itself when access is refused.
func (h *Handler) authorizeStream(c *gin.Context, consume bool) (model.Camera, string, bool) {
	cameraID, err := parse.ID(c.Query("camera"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "camera parameter is required")
		return model.Camera{}, "", false
	}
	cam, ok := h.loadCamera(c, cameraID)
	if !ok {
		return model.Camera{}, "", false
	}

	token := c.Query("token")
	if token == "" {
		if _, ok := mw.CurrentSession(c); ok && h.opts.AllowSessionStream {
			return cam, "", true
		}
		metrics.TokenRejections.WithLabelValues("missing").Inc()
		abortError(c, http.StatusForbidden, "access denied")
		return model.Camera{}, "", false
	}

	if consume {
		_, err = h.issuer.Consume(c.Request.Context(), cam.ID, token)
	} else {
		_, err = h.issuer.Validate(c.Request.Context(), cam.ID, token)
	}
	if err != nil {
		if access.IsRejection(err) {
			reason := access.Reason(err)
			metrics.TokenRejections.WithLabelValues(reason).Inc()
			logger.Log.Infof("camera %d: access refused (%s)", cam.ID, reason)
			abortError(c, http.StatusForbidden, "access denied")
			return model.Camera{}, "", false
		}
		logger.Log.Errorf("camera %d: check token: %v", cam.ID, err)
		abortError(c, http.StatusInternalServerError, "could not check access token")
		return model.Camera{}, "", false
	}
	return cam, token, true
}
