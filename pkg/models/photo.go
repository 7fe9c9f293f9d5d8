package models

// Photo represents a photo record owned by the remote API
type Photo struct {
	ID    string    `json:"_id"`
	URL   string    `json:"url"`
	User  PhotoUser `json:"user"`
	Likes int       `json:"likes"`
}

// PhotoUser is the uploader embedded in a photo
type PhotoUser struct {
	ID       string `json:"_id,omitempty"`
	Username string `json:"username"`
}

// LikeRequest represents the like request body
type LikeRequest struct {
	PhotoID string `json:"photoId"`
	UserID  string `json:"userId"`
}

// PendingUpload is a file chosen for the next upload
type PendingUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Empty reports whether no file has been selected
func (p *PendingUpload) Empty() bool {
	return p == nil || (p.Filename == "" && len(p.Data) == 0)
}
