package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"camguard-backend/internal/logger"
	"camguard-backend/internal/model"
	"camguard-backend/internal/store"
)

type putSubscriptionRequest struct {
	Endpoint string  `json:"endpoint" binding:"required"`
	P256DH   string  `json:"p256dh" binding:"required"`
	Auth     string  `json:"auth" binding:"required"`
	Cameras  []int64 `json:"cameras"`
}

// PutSubscription handles the creation or replacement of a subscription.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	if err := h.store.SaveSubscription(c.Request.Context(), &subscription, req.Cameras); err != nil {
		logger.Log.Errorf("save subscription: %v", err)
		abortError(c, http.StatusInternalServerError, "could not save subscription")
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		logger.Log.Errorf("delete subscription: %v", err)
		abortError(c, http.StatusInternalServerError, "could not delete subscription")
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns a query value without URL decoding; push endpoints
// are matched byte for byte.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription handles the retrieval of a subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		abortError(c, http.StatusBadRequest, "endpoint is required")
		return
	}

	subscription, err := h.store.GetSubscription(c.Request.Context(), raw)
	if errors.Is(err, store.ErrNotFound) {
		abortError(c, http.StatusNotFound, "subscription not found")
		return
	}
	if err != nil {
		logger.Log.Errorf("get subscription: %v", err)
		abortError(c, http.StatusInternalServerError, "could not load subscription")
		return
	}

	cameraIDs := make([]int64, len(subscription.Cameras))
	for i, cam := range subscription.Cameras {
		cameraIDs[i] = cam.ID
	}

	c.JSON(http.StatusOK, gin.H{"cameras": cameraIDs})
}
