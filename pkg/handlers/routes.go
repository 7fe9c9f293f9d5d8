package handlers

import (
	"net/http"

	"photoshare/pkg/auth"
	"photoshare/pkg/config"
	"photoshare/templates"

	"github.com/gin-gonic/gin"
)

// Register mounts every route on r
func (h *Handlers) Register(r *gin.Engine, cfg *config.SessionConfig) {
	r.StaticFS("/static", http.FS(templates.Static()))
	r.GET("/healthz", h.Healthz)

	// Every page and API route is bound to the caller's controller
	client := r.Group("/", auth.ClientIdentity(cfg), h.Session())

	// Page routes
	client.GET("/", h.Home)
	client.POST("/signup", h.SignUp)
	client.POST("/login", h.Login)
	client.POST("/logout", h.Logout)
	client.POST("/upload", h.Upload)
	client.POST("/like/:id", h.Like)
	client.POST("/refresh", h.Refresh)

	// API routes
	api := client.Group("/api")
	{
		api.GET("/state", h.State)
		api.GET("/events", h.Events)
	}
}
