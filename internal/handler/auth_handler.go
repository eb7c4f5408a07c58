package handler

import (
	"net/http"
	"strings"

	"go-creator-hub/internal/model"
	"go-creator-hub/internal/service"
	"go-creator-hub/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		writeError(w, apierror.New(apierror.CodeBadRequest, "email and password are required", "", http.StatusBadRequest))
		return
	}

	result, err := h.service.Login(r.Context(), strings.TrimSpace(payload.Email), payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Login successful", result)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, err := h.service.Register(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	message := "Registration successful"
	if !user.EmailVerified {
		message = "Registration successful, check your email to confirm your account"
	}
	writeSuccess(w, http.StatusCreated, message, user)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var payload model.VerifyEmailRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	if strings.TrimSpace(payload.Token) == "" {
		writeError(w, apierror.New(apierror.CodeBadRequest, "token is required", "token", http.StatusBadRequest))
		return
	}

	result, err := h.service.VerifyEmail(r.Context(), payload.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Email confirmed", result)
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var payload model.EmailRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), strings.TrimSpace(payload.Email)); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "If the account exists and is unconfirmed, a new email is on its way", nil)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.EmailRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), strings.TrimSpace(payload.Email)); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "If the account exists, a reset link is on its way", nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetPasswordRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), payload.Token, payload.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Password updated", nil)
}
