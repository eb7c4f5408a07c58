package model

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type StartConversationRequest struct {
	ParticipantID string `json:"participantId"`
}

type ProfileUpdate struct {
	Name        *string            `json:"name,omitempty"`
	Bio         *string            `json:"bio,omitempty"`
	Website     *string            `json:"website,omitempty"`
	Industry    *string            `json:"industry,omitempty"`
	Niche       *string            `json:"niche,omitempty"`
	Location    *string            `json:"location,omitempty"`
	SocialLinks *map[string]string `json:"socialLinks,omitempty"`
}
