package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go-creator-hub/internal/api"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/session"
)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrNotSignedIn        = errors.New("not signed in")
)

// Channel is the part of the realtime channel the session lifecycle drives.
type Channel interface {
	Connect()
	Disconnect() error
}

// CurrentUser is what the client can tell about the signed-in user from the
// stored token. The token signature is not checked here; the server does.
type CurrentUser struct {
	ID        string
	Email     string
	Role      string
	ExpiresAt time.Time
}

type Options struct {
	Logger *slog.Logger
	// OnSignOut runs after the session ends because the server rejected it.
	OnSignOut func()
	Now       func() time.Time
}

type Service struct {
	client  *api.Client
	store   *session.Store
	channel Channel
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	onSignOut func()
}

// New wires the flows and installs HandleUnauthorized as the client's 401
// hook.
func New(client *api.Client, store *session.Store, channel Channel, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		client:    client,
		store:     store,
		channel:   channel,
		logger:    logger.With("component", "account"),
		now:       now,
		onSignOut: opts.OnSignOut,
	}
	client.OnUnauthorized(s.HandleUnauthorized)

	return s
}

func (s *Service) OnSignOut(fn func()) {
	s.mu.Lock()
	s.onSignOut = fn
	s.mu.Unlock()
}

// Login authenticates, stores the session facts and re-opens the realtime
// channel under the new identity.
func (s *Service) Login(ctx context.Context, email string, password string, rememberMe bool) (*model.LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	res, err := s.client.Login(ctx, model.LoginRequest{Email: email, Password: password, RememberMe: rememberMe})
	if err != nil {
		return nil, err
	}

	s.establish(res, rememberMe)
	s.logger.Info("signed in", "user_id", res.UserID, "role", res.Role, "remember_me", rememberMe)

	return res, nil
}

func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return nil, ErrMissingCredentials
	}
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	if req.Role != model.RoleContentCreator {
		req.Role = model.RoleCompany
	}

	user, err := s.client.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Info("registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// VerifyEmail confirms a registration. When the server signs the user in as
// part of the confirmation the session is established like a login and
// signedIn is true.
func (s *Service) VerifyEmail(ctx context.Context, token string, rememberMe bool) (bool, error) {
	res, err := s.client.VerifyEmail(ctx, strings.TrimSpace(token))
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, nil
	}

	s.establish(res, rememberMe)
	s.logger.Info("email verified and signed in", "user_id", res.UserID)

	return true, nil
}

func (s *Service) ResendVerification(ctx context.Context, email string) error {
	return s.client.ResendVerification(ctx, strings.TrimSpace(email))
}

func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	return s.client.ForgotPassword(ctx, strings.TrimSpace(email))
}

func (s *Service) ResetPassword(ctx context.Context, token string, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("new password: %w", model.ErrInvalidInput)
	}
	return s.client.ResetPassword(ctx, strings.TrimSpace(token), newPassword)
}

// Logout ends the session locally. It is safe to call when signed out.
func (s *Service) Logout() error {
	s.store.ClearSession()
	if err := s.channel.Disconnect(); err != nil {
		return fmt.Errorf("disconnect realtime: %w", err)
	}
	s.logger.Info("signed out")
	return nil
}

// SyncRole re-reads the role from the server profile and rewrites the stored
// role facts in the tier the session already lives in.
func (s *Service) SyncRole(ctx context.Context) error {
	if !s.store.IsAuthenticated() {
		return ErrNotSignedIn
	}

	segment := api.SegmentCompany
	if s.store.IsContentCreator() {
		segment = api.SegmentContentCreator
	}

	profile, err := s.client.GetProfile(ctx, segment)
	if err != nil {
		return err
	}

	role := strings.ToUpper(strings.TrimPrefix(profile.Role, "ROLE_"))
	isCreator := role == model.RoleContentCreator
	s.store.SetRole("ROLE_"+role, role, s.store.Remembered(), isCreator)

	s.logger.Debug("role synchronised", "role", role)
	return nil
}

// HandleUnauthorized ends the session after the server rejected the token.
func (s *Service) HandleUnauthorized() {
	s.store.ClearSession()
	if err := s.channel.Disconnect(); err != nil {
		s.logger.Warn("disconnect after 401 failed", "error", err)
	}

	s.mu.Lock()
	fn := s.onSignOut
	s.mu.Unlock()

	s.logger.Info("session rejected by server; signing out")
	if fn != nil {
		fn()
	}
}

// CurrentUser decodes the stored token. An undecodable or expired token is
// reported as no user.
func (s *Service) CurrentUser() (CurrentUser, bool) {
	token, ok := s.store.Token()
	if !ok {
		return CurrentUser{}, false
	}

	user, err := decodeToken(token)
	if err != nil {
		s.logger.Debug("stored token is not a readable JWT", "error", err)
		return CurrentUser{}, false
	}
	if !user.ExpiresAt.IsZero() && !s.now().Before(user.ExpiresAt) {
		return CurrentUser{}, false
	}

	return user, true
}

func (s *Service) establish(res *model.LoginResult, rememberMe bool) {
	role := strings.ToUpper(strings.TrimPrefix(res.Role, "ROLE_"))

	s.store.SetToken(res.Token, rememberMe)
	s.store.SetRole("ROLE_"+role, role, rememberMe, res.IsContentCreator || role == model.RoleContentCreator)

	if err := s.channel.Disconnect(); err != nil {
		s.logger.Warn("disconnect before re-authenticating realtime failed", "error", err)
	}
	s.channel.Connect()
}

func decodeToken(token string) (CurrentUser, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return CurrentUser{}, fmt.Errorf("parse token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return CurrentUser{}, errors.New("token has no subject")
	}

	user := CurrentUser{ID: sub}
	user.Email, _ = claims["email"].(string)
	user.Role, _ = claims["role"].(string)

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		user.ExpiresAt = exp.Time
	}

	return user, nil
}
