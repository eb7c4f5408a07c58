package model

import "time"

type Profile struct {
	UserID      string            `json:"userId"`
	Email       string            `json:"email"`
	Role        string            `json:"role"`
	Name        string            `json:"name"`
	Bio         string            `json:"bio,omitempty"`
	Website     string            `json:"website,omitempty"`
	Industry    string            `json:"industry,omitempty"`
	Niche       string            `json:"niche,omitempty"`
	Location    string            `json:"location,omitempty"`
	SocialLinks map[string]string `json:"socialLinks,omitempty"`
	AvatarURL   string            `json:"avatarUrl,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}
