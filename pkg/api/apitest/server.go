// Package apitest provides an in-memory photo API for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"photoshare/pkg/models"
)

// UploadRecord is what the fake API received on POST /upload
type UploadRecord struct {
	Filename      string
	ContentType   string
	Data          []byte
	UserID        string
	Authorization string
}

// Server is a fake photo API. Failure switches make individual endpoints return 500.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	photos   []models.Photo
	users    map[string]string // username -> password
	tokens   map[string]string // username -> token
	likes    map[string]map[string]bool
	nextID   int
	requests map[string]int

	uploads    []UploadRecord
	likeBodies []models.LikeRequest
	failing    map[string]bool
}

// Endpoints that can be switched to failure with SetFail
const (
	Reads     = "reads" // both list endpoints
	AllPhotos = "photos"
	TopPhotos = "top-photos"
	Signup    = "signup"
	Login     = "login"
	Upload    = "upload"
	Like      = "like"
)

// NewServer starts a fake API preloaded with photos
func NewServer(photos ...models.Photo) *Server {
	s := &Server{
		photos:   append([]models.Photo(nil), photos...),
		users:    make(map[string]string),
		tokens:   make(map[string]string),
		likes:    make(map[string]map[string]bool),
		requests: make(map[string]int),
		failing:  make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /photos", s.listPhotos)
	mux.HandleFunc("GET /top-photos", s.topPhotos)
	mux.HandleFunc("POST /signup", s.signup)
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("POST /upload", s.upload)
	mux.HandleFunc("POST /like", s.like)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	return s
}

// SetToken makes POST /login for username answer with token
func (s *Server) SetToken(username, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[username] = token
}

// AddUser registers an account directly
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// SetLikes overwrites the like count of a stored photo
func (s *Server) SetLikes(id string, likes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.photos {
		if s.photos[i].ID == id {
			s.photos[i].Likes = likes
		}
	}
}

// SetFail makes endpoint answer 500 while on is true
func (s *Server) SetFail(endpoint string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[endpoint] = on
}

// Uploads returns every upload received so far
func (s *Server) Uploads() []UploadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UploadRecord(nil), s.uploads...)
}

// LikeBodies returns every like request body received so far
func (s *Server) LikeBodies() []models.LikeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LikeRequest(nil), s.likeBodies...)
}

// Requests returns how many times "METHOD /path" was called
func (s *Server) Requests(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

// TotalRequests returns the number of requests served
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.requests {
		total += n
	}
	return total
}

// Photos returns a copy of the stored photos
func (s *Server) Photos() []models.Photo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Photo(nil), s.photos...)
}

func (s *Server) listPhotos(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[Reads] || s.failing[AllPhotos] {
		fail(w)
		return
	}
	writeJSON(w, http.StatusOK, append([]models.Photo{}, s.photos...))
}

func (s *Server) topPhotos(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[Reads] || s.failing[TopPhotos] {
		fail(w)
		return
	}
	top := append([]models.Photo{}, s.photos...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Likes > top[j].Likes })
	if len(top) > 5 {
		top = top[:5]
	}
	writeJSON(w, http.StatusOK, top)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[Signup] {
		fail(w)
		return
	}
	if _, exists := s.users[creds.Username]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "user already exists"})
		return
	}
	s.users[creds.Username] = creds.Password
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User created"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[Login] {
		fail(w)
		return
	}
	if pw, ok := s.users[creds.Username]; !ok || pw != creds.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: s.tokens[creds.Username]})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image required"})
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, UploadRecord{
		Filename:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Data:          data,
		UserID:        r.FormValue("userId"),
		Authorization: r.Header.Get("Authorization"),
	})
	if s.failing[Upload] {
		fail(w)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	s.nextID++
	photo := models.Photo{
		ID:    fmt.Sprintf("p%d", s.nextID),
		URL:   "/uploads/" + header.Filename,
		User:  models.PhotoUser{ID: r.FormValue("userId"), Username: r.FormValue("userId")},
		Likes: 0,
	}
	s.photos = append(s.photos, photo)
	writeJSON(w, http.StatusCreated, photo)
}

func (s *Server) like(w http.ResponseWriter, r *http.Request) {
	var req models.LikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.likeBodies = append(s.likeBodies, req)
	if s.failing[Like] {
		fail(w)
		return
	}
	for i := range s.photos {
		if s.photos[i].ID != req.PhotoID {
			continue
		}
		if s.likes[req.PhotoID] == nil {
			s.likes[req.PhotoID] = make(map[string]bool)
		}
		if !s.likes[req.PhotoID][req.UserID] {
			s.likes[req.PhotoID][req.UserID] = true
			s.photos[i].Likes++
		}
		writeJSON(w, http.StatusOK, s.photos[i])
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "photo not found"})
}

func fail(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
