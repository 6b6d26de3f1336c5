package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/repository"
	"github.com/tastelab/cupping-rooms/internal/storage"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

type UsernameStatus string

const (
	UsernameAvailable UsernameStatus = "available"
	UsernameTaken     UsernameStatus = "taken"
	UsernameInvalid   UsernameStatus = "invalid"
)

type ProfileService struct {
	profiles repository.ProfileRepository
	photos   storage.PhotoStore
	logger   *slog.Logger
}

func NewProfileService(profiles repository.ProfileRepository, photos storage.PhotoStore, logger *slog.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, photos: photos, logger: logger}
}

// OnboardingInput contains the fields a new user picks on first sign-in
type OnboardingInput struct {
	Username string `json:"username" validate:"required,username"`
	Bio      string `json:"bio" validate:"max=300"`
}

// UpdateProfileInput only changes the fields that are set
type UpdateProfileInput struct {
	Username *string `json:"username" validate:"omitempty,username"`
	Bio      *string `json:"bio" validate:"omitempty,max=300"`
}

// EnsureProfile returns the profile for an auth subject, creating an empty
// one on first sight.
func (s *ProfileService) EnsureProfile(ctx context.Context, clerkID string) (*domain.UserProfile, error) {
	profile, err := s.profiles.GetByClerkID(ctx, clerkID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	profile = &domain.UserProfile{ID: uuid.New(), ClerkID: clerkID}
	if err := s.profiles.Create(ctx, profile); err != nil {
		// A concurrent request or the webhook created it first.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.profiles.GetByClerkID(ctx, clerkID)
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}
	s.logger.Info("profile_provisioned", "profile_id", profile.ID, "clerk_id", clerkID)
	return profile, nil
}

func (s *ProfileService) GetProfile(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

func (s *ProfileService) GetByUsername(ctx context.Context, username string) (*domain.UserProfile, error) {
	profile, err := s.profiles.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

// CheckUsername reports whether viewerID could claim username. A name the
// viewer already holds counts as available.
func (s *ProfileService) CheckUsername(ctx context.Context, viewerID uuid.UUID, username string) (UsernameStatus, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return UsernameInvalid, nil
	}
	existing, err := s.profiles.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UsernameAvailable, nil
		}
		return "", err
	}
	if existing.ID == viewerID {
		return UsernameAvailable, nil
	}
	return UsernameTaken, nil
}

func (s *ProfileService) CompleteOnboarding(ctx context.Context, profileID uuid.UUID, input OnboardingInput) (*domain.UserProfile, error) {
	profile, err := s.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateBio(input.Bio); err != nil {
		return nil, err
	}
	if err := s.claimUsername(ctx, profile, input.Username); err != nil {
		return nil, err
	}
	profile.Bio = input.Bio
	profile.OnboardingCompleted = true

	if err := s.save(ctx, profile); err != nil {
		return nil, err
	}
	s.logger.Info("onboarding_completed", "profile_id", profile.ID, "username", input.Username)
	return profile, nil
}

func (s *ProfileService) UpdateProfile(ctx context.Context, profileID uuid.UUID, input UpdateProfileInput) (*domain.UserProfile, error) {
	profile, err := s.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if input.Username != nil {
		if err := s.claimUsername(ctx, profile, *input.Username); err != nil {
			return nil, err
		}
	}
	if input.Bio != nil {
		if err := domain.ValidateBio(*input.Bio); err != nil {
			return nil, err
		}
		profile.Bio = *input.Bio
	}

	if err := s.save(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *ProfileService) claimUsername(ctx context.Context, profile *domain.UserProfile, username string) error {
	status, err := s.CheckUsername(ctx, profile.ID, username)
	if err != nil {
		return err
	}
	switch status {
	case UsernameInvalid:
		return domain.ErrInvalidUsername
	case UsernameTaken:
		return domain.ErrUsernameTaken
	}
	profile.Username = &username
	return nil
}

// save maps the case-insensitive unique index violation to ErrUsernameTaken.
func (s *ProfileService) save(ctx context.Context, profile *domain.UserProfile) error {
	if err := s.profiles.Update(ctx, profile); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrUsernameTaken
		}
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// UploadPhoto stores a new avatar and replaces the profile's photo URL. The
// content type is sniffed from the bytes rather than trusted from the client.
func (s *ProfileService) UploadPhoto(ctx context.Context, profileID uuid.UUID, data []byte) (*domain.UserProfile, error) {
	if s.photos == nil {
		return nil, domain.ErrStorageNotAvailable
	}
	if len(data) > domain.PhotoMaxBytes {
		return nil, domain.ErrPhotoTooLarge
	}
	contentType := http.DetectContentType(data)
	ext, err := domain.PhotoExtension(contentType)
	if err != nil {
		return nil, err
	}

	profile, err := s.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("avatars/%s/%s.%s", profile.ID, uuid.New(), ext)
	url, err := s.photos.Put(ctx, key, contentType, data)
	if err != nil {
		return nil, err
	}

	oldKey := profile.PhotoKey
	profile.PhotoKey = key
	profile.PhotoURL = url
	if err := s.save(ctx, profile); err != nil {
		return nil, err
	}

	if oldKey != "" {
		if err := s.photos.Delete(ctx, oldKey); err != nil {
			s.logger.Warn("photo_delete_failed", "profile_id", profile.ID, "key", oldKey, "err", err)
		}
	}
	return profile, nil
}

// SearchProfiles finds onboarded profiles whose username starts with prefix.
func (s *ProfileService) SearchProfiles(ctx context.Context, prefix string, limit int) ([]*domain.UserProfile, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []*domain.UserProfile{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return s.profiles.SearchByUsername(ctx, prefix, limit)
}

// ProvisionFromIdentity creates or refreshes a profile from the identity
// provider's user record. The suggested username is adopted only when it is
// valid and free; otherwise the user picks one during onboarding.
func (s *ProfileService) ProvisionFromIdentity(ctx context.Context, clerkID, username, imageURL string) (*domain.UserProfile, error) {
	profile, err := s.EnsureProfile(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	changed := false
	if profile.Username == nil && username != "" {
		status, err := s.CheckUsername(ctx, profile.ID, username)
		if err != nil {
			return nil, err
		}
		if status == UsernameAvailable {
			profile.Username = &username
			changed = true
		}
	}
	if profile.PhotoURL == "" && imageURL != "" {
		profile.PhotoURL = imageURL
		changed = true
	}
	if !changed {
		return profile, nil
	}

	if err := s.save(ctx, profile); err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) {
			s.logger.Warn("identity_username_taken", "clerk_id", clerkID, "username", username)
			return s.profiles.GetByClerkID(ctx, clerkID)
		}
		return nil, err
	}
	return profile, nil
}

func (s *ProfileService) DeleteByClerkID(ctx context.Context, clerkID string) error {
	profile, err := s.profiles.GetByClerkID(ctx, clerkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if err := s.profiles.DeleteByClerkID(ctx, clerkID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if profile.PhotoKey != "" && s.photos != nil {
		if err := s.photos.Delete(ctx, profile.PhotoKey); err != nil {
			s.logger.Warn("photo_delete_failed", "profile_id", profile.ID, "key", profile.PhotoKey, "err", err)
		}
	}
	s.logger.Info("profile_deleted", "profile_id", profile.ID, "clerk_id", clerkID)
	return nil
}
