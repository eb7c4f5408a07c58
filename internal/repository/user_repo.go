package repository

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go-creator-hub/internal/model"
	"go-creator-hub/pkg/apierror"
)

// UserRepository keeps accounts and their profiles in memory.
type UserRepository struct {
	mu       sync.RWMutex
	byID     map[string]model.User
	byEmail  map[string]string
	profiles map[string]model.Profile
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:     map[string]model.User{},
		byEmail:  map[string]string{},
		profiles: map[string]model.Profile{},
	}
}

func (r *UserRepository) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return model.User{}, apierror.New(apierror.CodeNotFound, "user not found", id, http.StatusNotFound)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[emailKey(email)]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return r.byID[id], nil
}

// Create stores u and an empty profile for it.
func (r *UserRepository) Create(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := emailKey(u.Email)
	if _, exists := r.byEmail[key]; exists {
		return model.ErrUserAlreadyExists
	}

	r.byID[u.ID] = u
	r.byEmail[key] = u.ID
	r.profiles[u.ID] = model.Profile{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Name:      u.Name,
		UpdatedAt: u.CreatedAt,
	}
	return nil
}

func (r *UserRepository) MarkVerified(_ context.Context, userID string) error {
	return r.update(userID, func(u *model.User) { u.EmailVerified = true })
}

func (r *UserRepository) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	return r.update(userID, func(u *model.User) { u.PasswordHash = passwordHash })
}

func (r *UserRepository) Profile(_ context.Context, userID string) (model.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return model.Profile{}, apierror.New(apierror.CodeNotFound, "profile not found", userID, http.StatusNotFound)
	}
	return p, nil
}

func (r *UserRepository) SaveProfile(_ context.Context, p model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[p.UserID]; !ok {
		return apierror.New(apierror.CodeNotFound, "user not found", p.UserID, http.StatusNotFound)
	}
	r.profiles[p.UserID] = p
	return nil
}

func (r *UserRepository) Count(_ context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *UserRepository) update(userID string, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return apierror.New(apierror.CodeNotFound, "user not found", userID, http.StatusNotFound)
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	r.byID[userID] = u
	return nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
