package model

import "time"

const (
	RoleCompany        = "COMPANY"
	RoleContentCreator = "CONTENT_CREATOR"
)

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type AuthClaims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// LoginResult is the data payload of a successful login or email
// confirmation. Role is the un-prefixed role token.
type LoginResult struct {
	Token            string `json:"token"`
	UserID           string `json:"userId"`
	Email            string `json:"email"`
	Name             string `json:"name,omitempty"`
	Role             string `json:"role"`
	IsContentCreator bool   `json:"isContentCreator"`
	ExpiresIn        int64  `json:"expiresIn,omitempty"`
}
