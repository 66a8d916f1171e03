package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"camguard-backend/internal/logger"
	"camguard-backend/internal/parse"
	"camguard-backend/internal/store"
)

type captureResponse struct {
	ID         int64     `json:"id"`
	CameraID   int64     `json:"camera_id"`
	CameraName string    `json:"camera_name"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
}

// Capture grabs one frame from the camera and stores it.
func (h *Handler) Capture(c *gin.Context) {
	cam, ok := h.camera(c)
	if !ok {
		return
	}

	if _, err := h.captures.CaptureNow(c.Request.Context(), cam); err != nil {
		logger.Log.Warnf("manual capture: %v", err)
		abortError(c, http.StatusInternalServerError, "could not capture a frame from the camera")
		return
	}

	c.Redirect(http.StatusSeeOther, "/captures/")
}

// Captures lists stored captures, newest first, filtered by camera and by an
// inclusive creation-time window.
func (h *Handler) Captures(c *gin.Context) {
	var (
		filter store.CaptureFilter
		err    error
	)

	if raw := c.Query("camera"); raw != "" {
		id, err := parse.ID(raw)
		if err != nil {
			abortError(c, http.StatusBadRequest, "camera must be a camera id")
			return
		}
		filter.CameraID = &id
	}
	if filter.From, err = parse.TimeBound(c.Query("date_from"), h.opts.Location, false); err != nil {
		abortError(c, http.StatusBadRequest, "date_from: "+err.Error())
		return
	}
	if filter.To, err = parse.TimeBound(c.Query("date_to"), h.opts.Location, true); err != nil {
		abortError(c, http.StatusBadRequest, "date_to: "+err.Error())
		return
	}

	captures, err := h.store.ListCaptures(c.Request.Context(), filter)
	if err != nil {
		logger.Log.Errorf("list captures: %v", err)
		abortError(c, http.StatusInternalServerError, "could not list captures")
		return
	}

	responses := make([]captureResponse, 0, len(captures))
	for _, cp := range captures {
		responses = append(responses, newCaptureResponse(cp, cp.Camera))
	}
	c.JSON(http.StatusOK, responses)
}
