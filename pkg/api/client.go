package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"photoshare/pkg/models"
)

var ErrEmptyToken = errors.New("api: login response carried no token")

// Error is a non-2xx answer from the photo API
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of err if it is an API error, 0 otherwise
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client talks to the remote photo API
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL. A zero timeout keeps the transport defaults.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// NewWithHTTPClient creates a client with a caller-provided http.Client
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// BaseURL returns the API root this client targets
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListPhotos returns every photo
func (c *Client) ListPhotos(ctx context.Context) ([]models.Photo, error) {
	var photos []models.Photo
	if err := c.do(ctx, http.MethodGet, "/photos", nil, "", "", &photos); err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return nonNil(photos), nil
}

// ListTopPhotos returns the server-ranked most liked photos
func (c *Client) ListTopPhotos(ctx context.Context) ([]models.Photo, error) {
	var photos []models.Photo
	if err := c.do(ctx, http.MethodGet, "/top-photos", nil, "", "", &photos); err != nil {
		return nil, fmt.Errorf("list top photos: %w", err)
	}
	return nonNil(photos), nil
}

// Signup creates an account. The confirmation body is implementation-defined.
func (c *Client) Signup(ctx context.Context, creds models.Credentials) (*models.SignupResponse, error) {
	body, err := jsonBody(creds)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/signup", body, "application/json", "", &raw); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	resp := &models.SignupResponse{Raw: raw}
	if err := json.Unmarshal(raw, resp); err != nil {
		resp.Message = strings.TrimSpace(string(raw))
	}
	return resp, nil
}

// Login exchanges credentials for a session token
func (c *Client) Login(ctx context.Context, creds models.Credentials) (string, error) {
	body, err := jsonBody(creds)
	if err != nil {
		return "", err
	}
	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", body, "application/json", "", &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return "", ErrEmptyToken
	}
	return resp.Token, nil
}

// Upload sends an image for userID as multipart form data with the bearer token attached
func (c *Client) Upload(ctx context.Context, token, userID string, file *models.PendingUpload) (*models.Photo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, escapeQuotes(file.Filename)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("upload: create image part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("upload: write image part: %w", err)
	}
	if err := mw.WriteField("userId", userID); err != nil {
		return nil, fmt.Errorf("upload: write userId: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload: close form: %w", err)
	}

	var photo models.Photo
	if err := c.do(ctx, http.MethodPost, "/upload", &buf, mw.FormDataContentType(), token, &photo); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return &photo, nil
}

// Like records a like of photoID by userID and returns the updated photo
func (c *Client) Like(ctx context.Context, photoID, userID string) (*models.Photo, error) {
	body, err := jsonBody(models.LikeRequest{PhotoID: photoID, UserID: userID})
	if err != nil {
		return nil, err
	}
	var photo models.Photo
	if err := c.do(ctx, http.MethodPost, "/like", body, "application/json", "", &photo); err != nil {
		return nil, fmt.Errorf("like: %w", err)
	}
	return &photo, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// errorMessage pulls {"error": ...} or {"message": ...} out of a failed response
func errorMessage(data []byte, status string) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return status
}

func nonNil(photos []models.Photo) []models.Photo {
	if photos == nil {
		return []models.Photo{}
	}
	return photos
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
