package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-creator-hub/internal/model"
	"go-creator-hub/internal/repository"
	"go-creator-hub/pkg/apierror"
)

const (
	verifyTokenTTL = 48 * time.Hour
	resetTokenTTL  = time.Hour
	minPassword    = 8
)

type AuthService struct {
	users        *repository.UserRepository
	tokens       *repository.TokenRepository
	jwtSecret    []byte
	accessTTL    time.Duration
	requireEmail bool
	bcryptCost   int
	logger       *slog.Logger
}

func NewAuthService(users *repository.UserRepository, tokens *repository.TokenRepository, jwtSecret string, accessTTL time.Duration, requireVerifiedEmail bool, logger *slog.Logger) (*AuthService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		users:        users,
		tokens:       tokens,
		jwtSecret:    []byte(jwtSecret),
		accessTTL:    accessTTL,
		requireEmail: requireVerifiedEmail,
		bcryptCost:   bcrypt.DefaultCost,
		logger:       logger.With("component", "auth"),
	}, nil
}

// SetBcryptCost lowers the hashing cost; tests use bcrypt.MinCost.
func (s *AuthService) SetBcryptCost(cost int) {
	s.bcryptCost = cost
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, apierror.New(apierror.CodeBadRequest, "a valid email is required", "", http.StatusBadRequest)
	}
	if len(req.Password) < minPassword {
		return model.User{}, apierror.New(apierror.CodeBadRequest, fmt.Sprintf("password must be at least %d characters", minPassword), "", http.StatusBadRequest)
	}

	role := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(req.Role), "ROLE_"))
	if role != model.RoleCompany && role != model.RoleContentCreator {
		return model.User{}, apierror.New(apierror.CodeBadRequest, "invalid role", req.Role, http.StatusBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:            uuid.NewString(),
		Email:         email,
		Name:          strings.TrimSpace(req.Name),
		PasswordHash:  string(hash),
		Role:          role,
		EmailVerified: !s.requireEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}

	if s.requireEmail {
		token := uuid.NewString()
		if err := s.tokens.Store(ctx, token, user.ID, repository.PurposeVerifyEmail, now.Add(verifyTokenTTL)); err != nil {
			return model.User{}, fmt.Errorf("store verification token: %w", err)
		}
		s.logger.Info("verification token issued", "user_id", user.ID, "email", user.Email, "verification_token", token)
	}

	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (model.LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return model.LoginResult{}, model.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.LoginResult{}, model.ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return model.LoginResult{}, model.ErrEmailNotVerified
	}

	return s.issue(user)
}

// VerifyEmail consumes a verification token and signs the user in.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (model.LoginResult, error) {
	userID, err := s.tokens.Consume(ctx, strings.TrimSpace(token), repository.PurposeVerifyEmail)
	if err != nil {
		return model.LoginResult{}, err
	}
	if err := s.users.MarkVerified(ctx, userID); err != nil {
		return model.LoginResult{}, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.LoginResult{}, err
	}

	return s.issue(user)
}

// ResendVerification is silent about unknown or already verified addresses.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil || user.EmailVerified {
		return nil
	}

	s.tokens.RevokeAllForUser(ctx, user.ID, repository.PurposeVerifyEmail)
	token := uuid.NewString()
	if err := s.tokens.Store(ctx, token, user.ID, repository.PurposeVerifyEmail, time.Now().UTC().Add(verifyTokenTTL)); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	s.logger.Info("verification token reissued", "user_id", user.ID, "verification_token", token)
	return nil
}

// ForgotPassword is silent about unknown addresses.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil
	}

	token := uuid.NewString()
	if err := s.tokens.Store(ctx, token, user.ID, repository.PurposeResetPassword, time.Now().UTC().Add(resetTokenTTL)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	s.logger.Info("password reset token issued", "user_id", user.ID, "reset_token", token)
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token string, newPassword string) error {
	if len(newPassword) < minPassword {
		return apierror.New(apierror.CodeBadRequest, fmt.Sprintf("password must be at least %d characters", minPassword), "", http.StatusBadRequest)
	}

	userID, err := s.tokens.Consume(ctx, strings.TrimSpace(token), repository.PurposeResetPassword)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.users.UpdatePassword(ctx, userID, string(hash))
}

func (s *AuthService) ValidateToken(tokenString string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.New(apierror.CodeUnauthorized, "invalid token signing method", "", http.StatusUnauthorized)
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, model.ErrUnauthorized
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrUnauthorized
	}

	claims := &model.AuthClaims{}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Email, _ = claimsMap["email"].(string)
	claims.Role, _ = claimsMap["role"].(string)

	if claims.UserID == "" {
		return nil, model.ErrUnauthorized
	}

	return claims, nil
}

func (s *AuthService) issue(user model.User) (model.LoginResult, error) {
	now := time.Now().UTC()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(s.accessTTL).Unix(),
	}).SignedString(s.jwtSecret)
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("sign token: %w", err)
	}

	return model.LoginResult{
		Token:            token,
		UserID:           user.ID,
		Email:            user.Email,
		Name:             user.Name,
		Role:             user.Role,
		IsContentCreator: user.Role == model.RoleContentCreator,
		ExpiresIn:        int64(s.accessTTL.Seconds()),
	}, nil
}
