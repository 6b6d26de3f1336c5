package domain

import (
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	UsernameMinLength = 3
	UsernameMaxLength = 30
	BioMaxLength      = 300
	PhotoMaxBytes     = 5 << 20
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// UserProfile is keyed by the external auth subject id. Username stays nil
// until onboarding is completed.
type UserProfile struct {
	ID                  uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ClerkID             string    `json:"clerkId" gorm:"uniqueIndex;not null"`
	Username            *string   `json:"username" gorm:"type:varchar(30);uniqueIndex"`
	Bio                 string    `json:"bio" gorm:"type:varchar(300);not null;default:''"`
	PhotoURL            string    `json:"photoUrl" gorm:"not null;default:''"`
	PhotoKey            string    `json:"-" gorm:"not null;default:''"`
	OnboardingCompleted bool      `json:"onboardingCompleted" gorm:"not null;default:false"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// DisplayName returns the username, or a placeholder for profiles that
// have not finished onboarding.
func (p *UserProfile) DisplayName() string {
	if p == nil || p.Username == nil {
		return "Anonymous"
	}
	return *p.Username
}

func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < UsernameMinLength || n > UsernameMaxLength {
		return ErrInvalidUsername
	}
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > BioMaxLength {
		return ErrBioTooLong
	}
	return nil
}

// PhotoExtension maps an accepted image content type to a file extension.
func PhotoExtension(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg":
		return "jpg", nil
	case "image/png":
		return "png", nil
	case "image/webp":
		return "webp", nil
	default:
		return "", ErrUnsupportedPhoto
	}
}
