package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-creator-hub/internal/middleware"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/repository"
	"go-creator-hub/internal/service"
	"go-creator-hub/pkg/apierror"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (model.RawResponse, model.ErrorData) {
	t.Helper()
	var envelope model.RawResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var data model.ErrorData
	if !envelope.Success {
		require.NoError(t, json.Unmarshal(envelope.Data, &data))
	}
	return envelope, data
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{err: apierror.New("CUSTOM", "custom", "d", http.StatusTeapot), status: http.StatusTeapot, code: "CUSTOM"},
		{err: fmt.Errorf("lookup: %w", model.ErrUserNotFound), status: http.StatusNotFound, code: "NOT_FOUND"},
		{err: model.ErrUserAlreadyExists, status: http.StatusConflict, code: "CONFLICT"},
		{err: model.ErrInvalidCredentials, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{err: model.ErrEmailNotVerified, status: http.StatusForbidden, code: "EMAIL_NOT_VERIFIED"},
		{err: model.ErrUnauthorized, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{err: model.ErrForbidden, status: http.StatusForbidden, code: "FORBIDDEN"},
		{err: model.ErrTokenExpired, status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{err: model.ErrConversationNotFound, status: http.StatusNotFound, code: "NOT_FOUND"},
		{err: model.ErrNotParticipant, status: http.StatusForbidden, code: "FORBIDDEN"},
		{err: fmt.Errorf("content: %w", model.ErrInvalidInput), status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{err: errors.New("disk on fire"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			envelope, data := decodeEnvelope(t, rec)
			assert.False(t, envelope.Success)
			assert.NotEmpty(t, envelope.Message)
			assert.NotEmpty(t, envelope.Timestamp)
			assert.Equal(t, tt.code, data.Code)
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSuccess(rec, http.StatusCreated, "created", map[string]string{"id": "c1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	envelope, _ := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)
	assert.Equal(t, "created", envelope.Message)
	assert.JSONEq(t, `{"id":"c1"}`, string(envelope.Data))
}

func TestAuthHandler_RejectsBadBodies(t *testing.T) {
	users := repository.NewUserRepository()
	auth, err := service.NewAuthService(users, repository.NewTokenRepository(), "secret", 0, false, nil)
	require.NoError(t, err)
	h := NewAuthHandler(auth)

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.VerifyEmail(rec, httptest.NewRequest(http.MethodPost, "/api/auth/verify-email", strings.NewReader(`{"token":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, data := decodeEnvelope(t, rec)
	assert.Equal(t, "token", data.Details)
}

func TestProfileHandler_AvatarMustBeJPEG(t *testing.T) {
	h := NewProfileHandler(service.NewProfileService(repository.NewUserRepository(), t.TempDir()), model.RoleCompany)
	claims := &model.AuthClaims{UserID: "u1", Role: model.RoleCompany}

	req := httptest.NewRequest(http.MethodPut, "/api/company/profile/avatar", strings.NewReader("\x89PNG\r\n\x1a\nrest"))
	req.Header.Set("Content-Type", "image/jpeg")
	req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	h.UploadAvatar(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/company/profile/avatar", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	rec = httptest.NewRecorder()
	h.UploadAvatar(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestHandlers_RequireClaims(t *testing.T) {
	h := NewChatHandler(nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/chat/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
