package models

// Credentials represents the sign-up and login request body
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token string `json:"token"`
}

// SignupResponse is whatever confirmation the API returns on sign-up
type SignupResponse struct {
	Message string `json:"message,omitempty"`
	Raw     []byte `json:"-"`
}
