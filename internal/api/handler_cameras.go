package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"camguard-backend/internal/capture"
	"camguard-backend/internal/logger"
	"camguard-backend/internal/model"
	"camguard-backend/internal/parse"
	"camguard-backend/internal/store"
)

type cameraResponse struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	StreamAddress string           `json:"stream_address"`
	Description   string           `json:"description"`
	CreatedAt     time.Time        `json:"created_at"`
	LastCapture   *captureResponse `json:"last_capture"`
}

type addCameraRequest struct {
	Name          string `form:"name" json:"name" binding:"required,max=150"`
	StreamAddress string `form:"rtsp_url" json:"rtsp_url" binding:"required"`
	Description   string `form:"description" json:"description"`
}

// Home lists the cameras, newest first, each with its latest capture.
func (h *Handler) Home(c *gin.Context) {
	summaries, err := h.store.ListCameras(c.Request.Context())
	if err != nil {
		logger.Log.Errorf("list cameras: %v", err)
		abortError(c, http.StatusInternalServerError, "could not list cameras")
		return
	}

	responses := make([]cameraResponse, 0, len(summaries))
	for _, s := range summaries {
		r := cameraResponse{
			ID:            s.ID,
			Name:          s.Name,
			StreamAddress: s.StreamAddress,
			Description:   s.Description,
			CreatedAt:     s.CreatedAt,
		}
		if s.LastCapture != nil {
			last := newCaptureResponse(*s.LastCapture, s.Camera)
			r.LastCapture = &last
		}
		responses = append(responses, r)
	}

	c.JSON(http.StatusOK, responses)
}

// AddCamera registers a camera and sends the user on to its share link.
func (h *Handler) AddCamera(c *gin.Context) {
	var req addCameraRequest
	if err := c.ShouldBind(&req); err != nil {
		abortBind(c, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		abortError(c, http.StatusBadRequest, "field name is required")
		return
	}
	address, err := parse.StreamAddress(req.StreamAddress)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	cam := model.Camera{
		Name:          name,
		StreamAddress: address,
		Description:   strings.TrimSpace(req.Description),
	}
	if err := h.store.CreateCamera(c.Request.Context(), &cam); err != nil {
		if errors.Is(err, store.ErrCameraExists) {
			abortError(c, http.StatusBadRequest, "a camera with this name already exists")
			return
		}
		logger.Log.Errorf("create camera %q: %v", name, err)
		abortError(c, http.StatusInternalServerError, "could not save camera")
		return
	}

	logger.Log.Infof("camera %d (%s) added", cam.ID, cam.Name)
	c.Redirect(http.StatusSeeOther, fmt.Sprintf("/generate_qr/%d/", cam.ID))
}

// DeleteCamera removes a camera together with its tokens and captures.
func (h *Handler) DeleteCamera(c *gin.Context) {
	id, err := parse.ID(c.Param("camera_id"))
	if err != nil {
		abortError(c, http.StatusNotFound, "camera not found")
		return
	}

	if err := h.captures.DeleteCamera(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortError(c, http.StatusNotFound, "camera not found")
			return
		}
		logger.Log.Errorf("delete camera %d: %v", id, err)
		abortError(c, http.StatusInternalServerError, "could not delete camera")
		return
	}

	c.Redirect(http.StatusSeeOther, "/home/")
}

// camera loads the camera named by the camera_id path parameter, answering
// 404 itself when there is none.
func (h *Handler) camera(c *gin.Context) (model.Camera, bool) {
	id, err := parse.ID(c.Param("camera_id"))
	if err != nil {
		abortError(c, http.StatusNotFound, "camera not found")
		return model.Camera{}, false
	}
	return h.loadCamera(c, id)
}

func (h *Handler) loadCamera(c *gin.Context, id int64) (model.Camera, bool) {
	cam, err := h.store.GetCamera(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		abortError(c, http.StatusNotFound, "camera not found")
		return model.Camera{}, false
	}
	if err != nil {
		logger.Log.Errorf("get camera %d: %v", id, err)
		abortError(c, http.StatusInternalServerError, "could not load camera")
		return model.Camera{}, false
	}
	return cam, true
}

func newCaptureResponse(cp model.Capture, cam model.Camera) captureResponse {
	return captureResponse{
		ID:         cp.ID,
		CameraID:   cp.CameraID,
		CameraName: cam.Name,
		URL:        capture.URL(cp),
		CreatedAt:  cp.CreatedAt,
	}
}
