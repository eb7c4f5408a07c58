package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go-creator-hub/internal/model"
	"go-creator-hub/internal/repository"
	"go-creator-hub/internal/util"
	"go-creator-hub/pkg/apierror"
)

const (
	maxAvatarBytes = 5 << 20
	maxFieldRunes  = 200
	maxBioRunes    = 2000
)

type ProfileService struct {
	users     *repository.UserRepository
	avatarDir string
}

// NewProfileService stores avatars under avatarDir, served at /avatars/.
func NewProfileService(users *repository.UserRepository, avatarDir string) *ProfileService {
	return &ProfileService{users: users, avatarDir: avatarDir}
}

// Get returns the caller's profile when it matches the role segment that was
// requested.
func (s *ProfileService) Get(ctx context.Context, claims *model.AuthClaims, role string) (model.Profile, error) {
	if claims.Role != role {
		return model.Profile{}, model.ErrForbidden
	}
	return s.users.Profile(ctx, claims.UserID)
}

func (s *ProfileService) Update(ctx context.Context, claims *model.AuthClaims, role string, update model.ProfileUpdate) (model.Profile, error) {
	p, err := s.Get(ctx, claims, role)
	if err != nil {
		return model.Profile{}, err
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = util.CleanLine(*src, maxFieldRunes)
		}
	}
	apply(&p.Name, update.Name)
	if update.Bio != nil {
		p.Bio = ""
		if bio, err := util.CleanText(*update.Bio, maxBioRunes); err == nil {
			p.Bio = bio
		}
	}
	apply(&p.Website, update.Website)
	apply(&p.Location, update.Location)
	if role == model.RoleCompany {
		apply(&p.Industry, update.Industry)
	} else {
		apply(&p.Niche, update.Niche)
	}
	if update.SocialLinks != nil {
		p.SocialLinks = *update.SocialLinks
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.users.SaveProfile(ctx, p); err != nil {
		return model.Profile{}, err
	}
	return p, nil
}

// SaveAvatar accepts a JPEG body and records its URL on the profile.
func (s *ProfileService) SaveAvatar(ctx context.Context, claims *model.AuthClaims, role string, body []byte) (model.Profile, error) {
	p, err := s.Get(ctx, claims, role)
	if err != nil {
		return model.Profile{}, err
	}

	if len(body) == 0 || len(body) > maxAvatarBytes {
		return model.Profile{}, apierror.New(apierror.CodeBadRequest, "avatar must be a JPEG up to 5MB", "", http.StatusBadRequest)
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(body)); err != nil || format != "jpeg" {
		return model.Profile{}, apierror.New(apierror.CodeBadRequest, "avatar must be a JPEG image", "", http.StatusBadRequest)
	}

	if err := os.MkdirAll(s.avatarDir, 0o755); err != nil {
		return model.Profile{}, fmt.Errorf("create avatar dir: %w", err)
	}
	name := claims.UserID + ".jpg"
	if err := os.WriteFile(filepath.Join(s.avatarDir, name), body, 0o644); err != nil {
		return model.Profile{}, fmt.Errorf("write avatar: %w", err)
	}

	p.AvatarURL = "/avatars/" + name
	p.UpdatedAt = time.Now().UTC()
	if err := s.users.SaveProfile(ctx, p); err != nil {
		return model.Profile{}, err
	}
	return p, nil
}
