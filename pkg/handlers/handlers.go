package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"photoshare/pkg/api"
	"photoshare/pkg/auth"
	"photoshare/pkg/models"
	"photoshare/pkg/session"
	"photoshare/templates"

	"github.com/a-h/templ"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// maxUploadSize bounds the multipart body accepted from the browser
const maxUploadSize = 32 << 20

// Handlers contains all HTTP handlers
type Handlers struct {
	manager  *session.Manager
	upgrader websocket.Upgrader
	l        *log.Logger
}

// New creates a new Handlers instance
func New(manager *session.Manager, l *log.Logger) *Handlers {
	return &Handlers{
		manager:  manager,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		l:        l,
	}
}

// Session resolves the controller of the calling client. It must run after auth.ClientIdentity.
func (h *Handlers) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl := h.manager.Get(c.Request.Context(), auth.ClientID(c))
		c.Request = c.Request.WithContext(session.NewContext(c.Request.Context(), ctrl))
		c.Next()
	}
}

func controller(c *gin.Context) *session.Controller {
	ctrl, ok := session.FromContext(c.Request.Context())
	if !ok {
		panic("handlers: no session controller in request context")
	}
	return ctrl
}

// ============== Page Handlers ==============

// Home renders the frontend for the calling client. Every page load
// re-reads both photo lists.
func (h *Handlers) Home(c *gin.Context) {
	ctrl := controller(c)
	ctrl.Initialize(c.Request.Context())
	view := ctrl.Snapshot()
	view.Notice = ctrl.ConsumeNotice()
	Render(c, http.StatusOK, templates.HomePage(view))
}

// ============== Auth Handlers ==============

// SignUp creates an account from the posted form
func (h *Handlers) SignUp(c *gin.Context) {
	ctrl := controller(c)
	ctrl.SetCredentials(c.PostForm("username"), c.PostForm("password"))

	err := ctrl.SignUp(c.Request.Context())
	if err != nil && !errors.Is(err, session.ErrMissingCredentials) {
		h.l.Warn("sign up failed", "err", err)
		ctrl.SetNotice("Sign up failed: " + describe(err))
	}
	h.back(c)
}

// Login logs the client in with the posted form
func (h *Handlers) Login(c *gin.Context) {
	ctrl := controller(c)
	ctrl.SetCredentials(c.PostForm("username"), c.PostForm("password"))

	if err := ctrl.LogIn(c.Request.Context()); err != nil {
		h.l.Warn("login failed", "err", err)
		ctrl.SetNotice("Login failed: " + describe(err))
	}
	h.back(c)
}

// Logout forgets the client's token
func (h *Handlers) Logout(c *gin.Context) {
	controller(c).LogOut(c.Request.Context())
	h.back(c)
}

// ============== Photo Handlers ==============

// Upload selects the posted image, if any, and uploads it
func (h *Handlers) Upload(c *gin.Context) {
	ctrl := controller(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	file, err := formImage(c)
	if err != nil {
		h.l.Error("read upload form", "err", err)
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		Render(c, status, templates.ErrorPage("The image could not be read."))
		return
	}
	if file != nil {
		ctrl.SelectImage(file)
	}

	// failures are logged by the controller and not shown to the user
	_ = ctrl.Upload(c.Request.Context())
	h.back(c)
}

// Like likes the photo named in the path
func (h *Handlers) Like(c *gin.Context) {
	ctrl := controller(c)
	if err := ctrl.Like(c.Request.Context(), c.Param("id")); errors.Is(err, session.ErrNotAuthenticated) {
		ctrl.SetNotice("Please log in to like photos.")
	}
	h.back(c)
}

// Refresh re-fetches both photo lists
func (h *Handlers) Refresh(c *gin.Context) {
	if err := controller(c).Refresh(c.Request.Context()); err != nil {
		h.l.Error("refresh", "err", err)
	}
	h.back(c)
}

// ============== API Handlers ==============

// State returns the client's view as JSON
func (h *Handlers) State(c *gin.Context) {
	view := controller(c).Snapshot()
	c.JSON(http.StatusOK, view)
}

// Healthz reports liveness
func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// back answers a form post with a redirect to the page
func (h *Handlers) back(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
}

// formImage reads the optional "image" file field
func formImage(c *gin.Context) (*models.PendingUpload, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if fh.Filename == "" && fh.Size == 0 {
		return nil, nil
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return &models.PendingUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func describe(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "please try again later"
}

// Render renders a templ component
func Render(c *gin.Context, status int, template templ.Component) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := template.Render(c.Request.Context(), c.Writer); err != nil {
		c.String(http.StatusInternalServerError, "Template rendering error")
	}
}
