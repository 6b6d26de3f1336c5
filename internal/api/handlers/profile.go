package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/service"
)

const (
	photoFormField = "photo"
	// Multipart framing on top of the photo limit.
	photoUploadSlack = 64 << 10
)

type ProfileHandler struct {
	base
	profileService *service.ProfileService
}

func NewProfileHandler(profileService *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{base: newBase(logger), profileService: profileService}
}

type UsernameCheckResponse struct {
	Username string                 `json:"username"`
	Status   service.UsernameStatus `json:"status"`
}

// Me returns the caller's profile, provisioning it on first use.
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	var req service.OnboardingInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.profileService.CompleteOnboarding(r.Context(), profile.ID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	var req service.UpdateProfileInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.profileService.UpdateProfile(r.Context(), profile.ID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ProfileHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	status, err := h.profileService.CheckUsername(r.Context(), profile.ID, username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UsernameCheckResponse{Username: username, Status: status})
}

// UploadPhoto accepts a multipart form with the image in the "photo" field.
func (h *ProfileHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, domain.PhotoMaxBytes+photoUploadSlack)
	file, _, err := r.FormFile(photoFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, domain.ErrPhotoTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"photo\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, domain.PhotoMaxBytes+1))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.profileService.UploadPhoto(r.Context(), profile.ID, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ProfileHandler) Search(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.profile(w, r); !ok {
		return
	}
	profiles, err := h.profileService.SearchProfiles(r.Context(), r.URL.Query().Get("q"), intQuery(r, "limit", service.DefaultSearchLimit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *ProfileHandler) GetByUsername(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profileService.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
