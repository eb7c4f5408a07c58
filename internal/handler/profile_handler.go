package handler

import (
	"io"
	"net/http"
	"strings"

	"go-creator-hub/internal/middleware"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/service"
	"go-creator-hub/internal/util"
	"go-creator-hub/pkg/apierror"
)

const maxAvatarUpload = 5<<20 + 1

// ProfileHandler serves one role's profile segment.
type ProfileHandler struct {
	service *service.ProfileService
	role    string
}

func NewProfileHandler(service *service.ProfileService, role string) *ProfileHandler {
	return &ProfileHandler{service: service, role: role}
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Get(r.Context(), claims, h.role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", profile)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var update model.ProfileUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	profile, err := h.service.Update(r.Context(), claims, h.role, update)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Profile updated", profile)
}

func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/jpeg") {
		writeError(w, apierror.New(apierror.CodeBadRequest, "avatar must be sent as image/jpeg", ct, http.StatusUnsupportedMediaType))
		return
	}

	mimeType, replay, err := util.SniffMIME(io.LimitReader(r.Body, maxAvatarUpload))
	if err != nil {
		writeError(w, apierror.New(apierror.CodeBadRequest, "could not read avatar", err.Error(), http.StatusBadRequest))
		return
	}
	if mimeType != "image/jpeg" {
		writeError(w, apierror.New(apierror.CodeBadRequest, "avatar body is not a JPEG image", mimeType, http.StatusUnsupportedMediaType))
		return
	}

	body, err := io.ReadAll(replay)
	if err != nil {
		writeError(w, apierror.New(apierror.CodeBadRequest, "could not read avatar", err.Error(), http.StatusBadRequest))
		return
	}

	profile, err := h.service.SaveAvatar(r.Context(), claims, h.role, body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Avatar updated", profile)
}

func requireClaims(w http.ResponseWriter, r *http.Request) (*model.AuthClaims, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
