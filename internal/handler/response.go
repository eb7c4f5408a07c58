package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go-creator-hub/internal/model"
	"go-creator-hub/pkg/apierror"
)

const maxJSONBody = 1 << 20

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.Succeed(message, data))
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := apierror.CodeInternal
	message := "Unexpected server error"
	details := ""

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		code = apiErr.Code
		message = apiErr.Message
		details = apiErr.Details
	} else if errors.Is(err, model.ErrUserNotFound) {
		status = http.StatusNotFound
		code = apierror.CodeNotFound
		message = "User not found"
	} else if errors.Is(err, model.ErrUserAlreadyExists) {
		status = http.StatusConflict
		code = apierror.CodeConflict
		message = "An account with this email already exists"
	} else if errors.Is(err, model.ErrInvalidCredentials) {
		status = http.StatusUnauthorized
		code = apierror.CodeUnauthorized
		message = "Invalid email or password"
	} else if errors.Is(err, model.ErrEmailNotVerified) {
		status = http.StatusForbidden
		code = "EMAIL_NOT_VERIFIED"
		message = "Please confirm your email before signing in"
	} else if errors.Is(err, model.ErrUnauthorized) {
		status = http.StatusUnauthorized
		code = apierror.CodeUnauthorized
		message = "Authentication required"
	} else if errors.Is(err, model.ErrForbidden) {
		status = http.StatusForbidden
		code = apierror.CodeForbidden
		message = "Access denied"
	} else if errors.Is(err, model.ErrTokenNotFound) || errors.Is(err, model.ErrTokenExpired) {
		// 400, not 401: a stale link must not end the caller's session
		status = http.StatusBadRequest
		code = apierror.CodeBadRequest
		message = "Invalid or expired token"
	} else if errors.Is(err, model.ErrConversationNotFound) {
		status = http.StatusNotFound
		code = apierror.CodeNotFound
		message = "Conversation not found"
	} else if errors.Is(err, model.ErrNotParticipant) {
		status = http.StatusForbidden
		code = apierror.CodeForbidden
		message = "You are not part of this conversation"
	} else if errors.Is(err, model.ErrInvalidInput) {
		status = http.StatusBadRequest
		code = apierror.CodeBadRequest
		message = "Invalid input"
		details = err.Error()
	} else {
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.Fail(code, message, details))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, apierror.New(apierror.CodeBadRequest, "invalid JSON body", err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}
