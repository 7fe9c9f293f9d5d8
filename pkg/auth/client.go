package auth

import (
	"net/http"

	"photoshare/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ClientIDKey is the gin context key holding the browser's client id
const ClientIDKey = "client_id"

// ClientIDHeader lets non-browser callers pick their client id
const ClientIDHeader = "X-Client-ID"

// ClientIdentity returns a Gin middleware that tags every request with a
// client id, issuing the cookie when the browser has none
func ClientIdentity(cfg *config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for id in cookie first
		clientID, err := c.Cookie(cfg.CookieName)
		if err != nil || !validClientID(clientID) {
			// Try header
			clientID = c.GetHeader(ClientIDHeader)
		}

		if !validClientID(clientID) {
			clientID = uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cfg.CookieName, clientID, cfg.CookieMaxAge, "/", "", cfg.SecureCookie, true)
		}

		c.Set(ClientIDKey, clientID)
		c.Next()
	}
}

// ClientID returns the id set by ClientIdentity
func ClientID(c *gin.Context) string {
	return c.GetString(ClientIDKey)
}

func validClientID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
