package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"camguard-backend/internal/auth"
	"camguard-backend/internal/logger"
	"camguard-backend/internal/store"
)

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type registerRequest struct {
	Username        string `form:"username" json:"username" binding:"required,max=150"`
	Email           string `form:"email" json:"email" binding:"required,email"`
	Password        string `form:"password" json:"password" binding:"required"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// LoginForm describes the fields the login form posts.
func (h *Handler) LoginForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fields": []string{"username", "password"}})
}

// Login checks the credentials and sets the session cookie.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		abortBind(c, err)
		return
	}

	token, _, err := h.auth.Login(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		abortError(c, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		logger.Log.Errorf("login failed: %v", err)
		abortError(c, http.StatusInternalServerError, "login failed")
		return
	}

	h.setSessionCookie(c, token)
	c.Redirect(http.StatusSeeOther, "/home/")
}

// RegisterForm describes the fields the registration form posts.
func (h *Handler) RegisterForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fields": []string{"username", "email", "password", "confirm_password"}})
}

// Register creates an account and logs the new user in.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		abortBind(c, err)
		return
	}
	if req.Password != req.ConfirmPassword {
		abortError(c, http.StatusBadRequest, "passwords do not match")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		abortError(c, http.StatusBadRequest, "field username is required")
		return
	}

	user, err := h.auth.Register(c.Request.Context(), username, strings.TrimSpace(req.Email), req.Password)
	if errors.Is(err, store.ErrUserExists) {
		abortError(c, http.StatusBadRequest, "username is already taken")
		return
	}
	if err != nil {
		logger.Log.Errorf("register failed: %v", err)
		abortError(c, http.StatusInternalServerError, "registration failed")
		return
	}

	token, err := h.auth.NewSessionToken(user)
	if err != nil {
		logger.Log.Errorf("sign session for %q: %v", username, err)
		abortError(c, http.StatusInternalServerError, "registration failed")
		return
	}

	h.setSessionCookie(c, token)
	c.Redirect(http.StatusSeeOther, "/home/")
}

// Logout clears the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.opts.CookieName, "", -1, "/", "", h.secureCookies(), true)
	c.Redirect(http.StatusSeeOther, "/login/")
}

func (h *Handler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.opts.CookieName, token, int(h.opts.SessionTTL.Seconds()), "/", "", h.secureCookies(), true)
}

func (h *Handler) secureCookies() bool {
	return strings.HasPrefix(h.opts.PublicBaseURL, "https://")
}
