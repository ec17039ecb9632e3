package models

import (
	"time"

	taskmodels "taskdesk/internal/task/models"
	id "taskdesk/pkg/domain"
)

// Credential is the login secret of a profile. Email is stored as entered
// and matched case-insensitively.
type Credential struct {
	ProfileID    id.ProfileID
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// SignupRequest registers a new user. RequestAdmin asks for the admin role,
// which is granted only when AdminCode matches the configured code.
type SignupRequest struct {
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	FullName     *string `json:"full_name,omitempty"`
	RequestAdmin bool    `json:"request_admin"`
	AdminCode    string  `json:"admin_code,omitempty"`
}

// SignupResult reports the created profile. Notice is set when the requested
// role was not granted.
type SignupResult struct {
	Profile taskmodels.Profile `json:"profile"`
	Notice  string             `json:"notice,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	ExpiresAt   time.Time          `json:"expires_at"`
	Profile     taskmodels.Profile `json:"profile"`
}
