package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"camguard-backend/internal/auth"
)

const sessionKey = "session"

// SessionParser verifies session tokens.
type SessionParser interface {
	ParseSession(token string) (auth.Session, error)
}

// Session attaches the caller's session, if any, to the context. The token is
// read from cookieName or an "Authorization: Bearer" header.
func Session(parser SessionParser, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(cookieName)
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token != "" {
			if s, err := parser.ParseSession(token); err == nil {
				c.Set(sessionKey, s)
			}
		}
		c.Next()
	}
}

// RequireSession rejects requests that carry no valid session.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentSession(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		c.Next()
	}
}

// CurrentSession returns the session attached by Session.
func CurrentSession(c *gin.Context) (auth.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return auth.Session{}, false
	}
	s, ok := v.(auth.Session)
	return s, ok
}
