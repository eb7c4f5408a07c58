package repository

import (
	"context"
	"sync"
	"time"

	"go-creator-hub/internal/model"
)

type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "verify-email"
	PurposeResetPassword TokenPurpose = "reset-password"
)

type oneTimeToken struct {
	userID    string
	purpose   TokenPurpose
	expiresAt time.Time
}

// TokenRepository holds single-use email verification and password reset
// tokens.
type TokenRepository struct {
	mu     sync.Mutex
	tokens map[string]oneTimeToken
	now    func() time.Time
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{tokens: map[string]oneTimeToken{}, now: time.Now}
}

func (r *TokenRepository) Store(_ context.Context, token string, userID string, purpose TokenPurpose, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[token] = oneTimeToken{userID: userID, purpose: purpose, expiresAt: expiresAt}
	return nil
}

// Consume returns the owner of token and deletes it. Expired tokens and
// tokens issued for another purpose are reported as not found.
func (r *TokenRepository) Consume(_ context.Context, token string, purpose TokenPurpose) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok || t.purpose != purpose {
		return "", model.ErrTokenNotFound
	}
	delete(r.tokens, token)

	if !r.now().Before(t.expiresAt) {
		return "", model.ErrTokenExpired
	}
	return t.userID, nil
}

// Latest returns the newest live token for a user; the devserver log shows
// it since no mail is sent.
func (r *TokenRepository) Latest(_ context.Context, userID string, purpose TokenPurpose) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		best    string
		bestExp time.Time
	)
	for token, t := range r.tokens {
		if t.userID == userID && t.purpose == purpose && t.expiresAt.After(bestExp) {
			best, bestExp = token, t.expiresAt
		}
	}
	return best, best != ""
}

func (r *TokenRepository) RevokeAllForUser(_ context.Context, userID string, purpose TokenPurpose) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, t := range r.tokens {
		if t.userID == userID && t.purpose == purpose {
			delete(r.tokens, token)
		}
	}
}
