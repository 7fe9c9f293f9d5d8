// Package session holds the per-browser state of the photo frontend and
// mediates every call to the photo API.
//
// A Controller is the only place where a client's token, drafts, pending
// upload and photo lists change. Handlers obtain it through a Manager (one
// controller per client id) and the request context.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"photoshare/pkg/auth"
	"photoshare/pkg/models"
	"photoshare/pkg/store"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotAuthenticated   = errors.New("not logged in")
	ErrNoImageSelected    = errors.New("no image selected")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrMissingPhotoID     = errors.New("photo id is required")
	ErrSessionExpired     = errors.New("session token rejected")
)

// User-facing notices
const (
	NoticeSignedUp           = "User created! Please log in."
	NoticeSelectImage        = "Please select an image to upload."
	NoticeMissingCredentials = "Please enter a username and password."
	NoticeSessionExpired     = "Your session has expired. Please log in again."
)

// PhotoAPI is the remote photo service as seen by a controller
type PhotoAPI interface {
	ListPhotos(ctx context.Context) ([]models.Photo, error)
	ListTopPhotos(ctx context.Context) ([]models.Photo, error)
	Signup(ctx context.Context, creds models.Credentials) (*models.SignupResponse, error)
	Login(ctx context.Context, creds models.Credentials) (string, error)
	Upload(ctx context.Context, token, userID string, file *models.PendingUpload) (*models.Photo, error)
	Like(ctx context.Context, photoID, userID string) (*models.Photo, error)
}

// View is a copy of a controller's state for rendering
type View struct {
	Authenticated bool           `json:"authenticated"`
	Username      string         `json:"username,omitempty"`
	DraftUsername string         `json:"-"`
	SelectedImage string         `json:"selectedImage,omitempty"`
	Notice        string         `json:"notice,omitempty"`
	Photos        []models.Photo `json:"photos"`
	TopPhotos     []models.Photo `json:"topPhotos"`
}

// Controller owns the state of one client
type Controller struct {
	clientID string
	api      PhotoAPI
	tokens   store.TokenStore
	claims   auth.ClaimsReader
	l        *log.Logger

	restoreMu sync.Mutex
	restored  bool

	mu        sync.Mutex
	photos    []models.Photo
	topPhotos []models.Photo
	username  string
	password  string
	token     string
	image     *models.PendingUpload
	notice    string

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// NewController creates a controller for clientID. Call Initialize on every page load.
func NewController(clientID string, api PhotoAPI, tokens store.TokenStore, claims auth.ClaimsReader, l *log.Logger) *Controller {
	return &Controller{
		clientID:  clientID,
		api:       api,
		tokens:    tokens,
		claims:    claims,
		l:         l,
		photos:    []models.Photo{},
		topPhotos: []models.Photo{},
		subs:      make(map[chan struct{}]struct{}),
	}
}

// ClientID returns the client this controller belongs to
func (c *Controller) ClientID() string {
	return c.clientID
}

// Initialize is one app load: it restores the persisted token, the first
// time only, and reads both photo lists. A held token that no longer
// verifies logs the client out.
func (c *Controller) Initialize(ctx context.Context) {
	c.restore(ctx)

	if token := c.Token(); token != "" {
		if _, err := c.claims.Read(token); errors.Is(err, auth.ErrInvalidToken) {
			c.expire(ctx, token)
		}
	}

	if err := c.Load(ctx); err != nil {
		c.l.Error("photo load", "err", err)
	}
}

// restore reads the stored token once per controller. A failed read is
// retried on the next call.
func (c *Controller) restore(ctx context.Context) {
	c.restoreMu.Lock()
	defer c.restoreMu.Unlock()
	if c.restored {
		return
	}

	token, ok, err := c.tokens.Get(ctx, c.clientID)
	if err != nil {
		c.l.Error("read stored token", "err", err)
		return
	}
	c.restored = true
	if ok {
		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
	}
}

// Load reads both lists. Each one is stored as soon as its own response
// arrives, so one failing endpoint does not blank the other.
func (c *Controller) Load(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		photos, err := c.api.ListPhotos(ctx)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.photos = photos
		c.mu.Unlock()
		c.publish()
		return nil
	})
	g.Go(func() error {
		top, err := c.api.ListTopPhotos(ctx)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.topPhotos = top
		c.mu.Unlock()
		c.publish()
		return nil
	})
	return g.Wait()
}

// Refresh re-fetches both lists and replaces them wholesale. If either read
// fails both lists keep their previous contents.
func (c *Controller) Refresh(ctx context.Context) error {
	var photos, top []models.Photo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		photos, err = c.api.ListPhotos(gctx)
		return err
	})
	g.Go(func() (err error) {
		top, err = c.api.ListTopPhotos(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	c.mu.Lock()
	c.photos = photos
	c.topPhotos = top
	c.mu.Unlock()
	c.publish()
	return nil
}

// SetCredentials records the auth form drafts
func (c *Controller) SetCredentials(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.password = password
}

func (c *Controller) credentials() (models.Credentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	creds := models.Credentials{Username: c.username, Password: c.password}
	return creds, creds.Username != "" && creds.Password != ""
}

// SignUp creates an account from the drafts. It does not log in.
func (c *Controller) SignUp(ctx context.Context) error {
	creds, ok := c.credentials()
	if !ok {
		c.SetNotice(NoticeMissingCredentials)
		return ErrMissingCredentials
	}

	if _, err := c.api.Signup(ctx, creds); err != nil {
		return err
	}

	c.l.Info("account created", "username", creds.Username)
	c.SetNotice(NoticeSignedUp)
	return nil
}

// LogIn exchanges the drafts for a token, persists it and switches the
// client to the authenticated view. On failure no token is set.
func (c *Controller) LogIn(ctx context.Context) error {
	creds, _ := c.credentials()

	token, err := c.api.Login(ctx, creds)
	if err != nil {
		return err
	}
	if err := c.tokens.Set(ctx, c.clientID, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}

	c.mu.Lock()
	c.token = token
	c.username = ""
	c.password = ""
	c.mu.Unlock()

	c.l.Info("logged in", "username", creds.Username)
	c.publish()
	return nil
}

// LogOut forgets the token locally and in durable storage. The server is not contacted.
func (c *Controller) LogOut(ctx context.Context) {
	if err := c.tokens.Delete(ctx, c.clientID); err != nil {
		c.l.Error("delete stored token", "err", err)
	}

	c.mu.Lock()
	c.token = ""
	c.image = nil
	c.mu.Unlock()

	c.l.Info("logged out")
	c.publish()
}

// SelectImage records the file for the next upload
func (c *Controller) SelectImage(file *models.PendingUpload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.image = file
}

// Upload sends the selected image for the current user. The returned photo
// is appended at once, then both lists are refreshed from the server.
// Upload failures are logged and leave the state untouched.
func (c *Controller) Upload(ctx context.Context) error {
	c.mu.Lock()
	image, token := c.image, c.token
	if image.Empty() {
		c.notice = NoticeSelectImage
		c.mu.Unlock()
		c.publish()
		return ErrNoImageSelected
	}
	c.mu.Unlock()

	if token == "" {
		return ErrNotAuthenticated
	}

	userID, err := c.userID(ctx, token)
	if err != nil {
		return err
	}

	photo, err := c.api.Upload(ctx, token, userID, image)
	if err != nil {
		c.l.Error("Error uploading file", "err", err)
		return err
	}
	c.l.Info("File uploaded", "photo", photo.ID)

	c.mu.Lock()
	c.photos = append(slices.Clone(c.photos), *photo)
	if c.image == image {
		c.image = nil
	}
	c.mu.Unlock()
	c.publish()

	c.refreshAfter(ctx, "upload")
	return nil
}

// Like records a like by the current user. The server's updated record
// replaces the local copy, then both lists are refreshed.
func (c *Controller) Like(ctx context.Context, photoID string) error {
	if photoID == "" {
		return ErrMissingPhotoID
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return ErrNotAuthenticated
	}

	userID, err := c.userID(ctx, token)
	if err != nil {
		return err
	}

	photo, err := c.api.Like(ctx, photoID, userID)
	if err != nil {
		c.l.Error("like photo", "photo", photoID, "err", err)
		return err
	}

	c.mu.Lock()
	photos := slices.Clone(c.photos)
	for i := range photos {
		if photos[i].ID == photoID {
			photos[i] = *photo
		}
	}
	c.photos = photos
	c.mu.Unlock()
	c.publish()

	c.refreshAfter(ctx, "like")
	return nil
}

// userID reads the user id from token. A token that fails verification
// ends the session.
func (c *Controller) userID(ctx context.Context, token string) (string, error) {
	id, err := auth.UserID(c.claims, token)
	if errors.Is(err, auth.ErrInvalidToken) {
		c.expire(ctx, token)
		return "", ErrSessionExpired
	}
	if err != nil {
		c.l.Error("read token claims", "err", err)
		return "", err
	}
	return id, nil
}

// expire logs the client out after token was rejected. It does nothing if
// the client has meanwhile switched tokens.
func (c *Controller) expire(ctx context.Context, token string) {
	c.mu.Lock()
	if c.token != token {
		c.mu.Unlock()
		return
	}
	c.token = ""
	c.image = nil
	c.notice = NoticeSessionExpired
	c.mu.Unlock()

	c.l.Warn("session token rejected, logging out")
	if err := c.tokens.Delete(ctx, c.clientID); err != nil {
		c.l.Error("delete stored token", "err", err)
	}
	c.publish()
}

// refreshAfter reconciles optimistic changes with the server. It is
// authoritative and overwrites them.
func (c *Controller) refreshAfter(ctx context.Context, action string) {
	if err := c.Refresh(ctx); err != nil {
		c.l.Warn("refresh failed", "after", action, "err", err)
	}
}

// SetNotice queues a message for the next render
func (c *Controller) SetNotice(msg string) {
	c.mu.Lock()
	c.notice = msg
	c.mu.Unlock()
	c.publish()
}

// ConsumeNotice returns the pending notice and clears it
func (c *Controller) ConsumeNotice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.notice
	c.notice = ""
	return msg
}

// Authenticated reports whether a token is held
func (c *Controller) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// Token returns the held session token, empty when logged out
func (c *Controller) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Snapshot copies the state for rendering. The notice is left in place.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	v := View{
		Authenticated: c.token != "",
		DraftUsername: c.username,
		Notice:        c.notice,
		Photos:        slices.Clone(c.photos),
		TopPhotos:     slices.Clone(c.topPhotos),
	}
	if !c.image.Empty() {
		v.SelectedImage = c.image.Filename
	}
	token := c.token
	c.mu.Unlock()

	if token != "" {
		if claims, err := c.claims.Read(token); err == nil {
			v.Username = claims.Username
		}
	}
	return v
}

// Subscribe returns a channel signalled after every state change and a
// function that ends the subscription
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, ch)
			c.subMu.Unlock()
		})
	}
}

// watched reports whether any subscription is open
func (c *Controller) watched() bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs) > 0
}

func (c *Controller) publish() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default: // a signal is already pending
		}
	}
}
