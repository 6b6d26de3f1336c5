package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tastelab/cupping-rooms/internal/api/middleware"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/service"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("invalid request body")

// statusFor maps domain errors to HTTP status codes. Anything not listed is
// an internal error.
var statusFor = map[error]int{
	domain.ErrProfileNotFound:     http.StatusNotFound,
	domain.ErrInvalidUsername:     http.StatusBadRequest,
	domain.ErrUsernameTaken:       http.StatusConflict,
	domain.ErrBioTooLong:          http.StatusBadRequest,
	domain.ErrUnsupportedPhoto:    http.StatusUnsupportedMediaType,
	domain.ErrPhotoTooLarge:       http.StatusRequestEntityTooLarge,
	domain.ErrOnboardingRequired:  http.StatusForbidden,
	domain.ErrStorageNotAvailable: http.StatusServiceUnavailable,

	domain.ErrRoomNotFound:         http.StatusNotFound,
	domain.ErrNotRoomHost:          http.StatusForbidden,
	domain.ErrNotRoomMember:        http.StatusForbidden,
	domain.ErrHostCannotLeave:      http.StatusConflict,
	domain.ErrInvalidRoomState:     http.StatusConflict,
	domain.ErrInvalidTransition:    http.StatusConflict,
	domain.ErrCodeGenerationFailed: http.StatusServiceUnavailable,
	domain.ErrInvalidTimer:         http.StatusBadRequest,
	domain.ErrInvalidRoomName:      http.StatusBadRequest,
	domain.ErrInvalidRoomMode:      http.StatusBadRequest,

	domain.ErrInvitationNotFound: http.StatusNotFound,
	domain.ErrAlreadyInvited:     http.StatusConflict,
	domain.ErrAlreadyMember:      http.StatusConflict,
	domain.ErrCannotInviteSelf:   http.StatusBadRequest,
	domain.ErrInvitationClosed:   http.StatusConflict,

	domain.ErrCoffeeNotFound:     http.StatusNotFound,
	domain.ErrCoffeeInUse:        http.StatusConflict,
	domain.ErrTooManyCoffees:     http.StatusConflict,
	domain.ErrInvalidCoffeeName:  http.StatusBadRequest,
	domain.ErrNotEnoughCoffees:   http.StatusConflict,
	domain.ErrSetNotFound:        http.StatusNotFound,
	domain.ErrInvalidSetRows:     http.StatusBadRequest,
	domain.ErrPairEqualsOdd:      http.StatusBadRequest,
	domain.ErrInvalidOddPosition: http.StatusBadRequest,
	domain.ErrCoffeeNotInRoom:    http.StatusBadRequest,
	domain.ErrSetRowNotFound:     http.StatusNotFound,
	domain.ErrSetInUse:           http.StatusConflict,

	domain.ErrSessionNotFound:  http.StatusNotFound,
	domain.ErrRoundNotFound:    http.StatusNotFound,
	domain.ErrRoundClosed:      http.StatusConflict,
	domain.ErrRoundNotRevealed: http.StatusForbidden,
	domain.ErrNotParticipant:   http.StatusForbidden,
	domain.ErrAlreadySubmitted: http.StatusConflict,
	domain.ErrInvalidAnswers:   http.StatusBadRequest,
	domain.ErrWrongRoomMode:    http.StatusConflict,

	domain.ErrCuppingSessionNotFound: http.StatusNotFound,
	domain.ErrSampleNotFound:         http.StatusNotFound,
	domain.ErrInvalidFormType:        http.StatusBadRequest,
	domain.ErrInvalidScore:           http.StatusBadRequest,
	domain.ErrScoreAlreadySubmitted:  http.StatusConflict,
	domain.ErrCuppingSessionClosed:   http.StatusConflict,
	domain.ErrInvalidSampleName:      http.StatusBadRequest,

	domain.ErrUnauthorized:     http.StatusUnauthorized,
	domain.ErrInvalidSignature: http.StatusUnauthorized,
	service.ErrMalformedEvent:  http.StatusBadRequest,
}

// base carries what every handler needs to decode requests and render
// responses.
type base struct {
	logger   *slog.Logger
	validate *validator.Validate
}

func newBase(logger *slog.Logger) base {
	return base{logger: logger, validate: NewValidator()}
}

// NewValidator returns a validator with the project's custom rules.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return domain.ValidateUsername(fl.Field().String()) == nil
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fail renders err using the status table. Unknown errors are logged and
// hidden behind a generic message.
func (b base) fail(w http.ResponseWriter, r *http.Request, err error) {
	for target, status := range statusFor {
		if errors.Is(err, target) {
			writeError(w, status, target.Error())
			return
		}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, validationMessage(verrs))
		return
	}
	if errors.Is(err, errBadBody) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b.logger.Error("request_failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func validationMessage(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "username":
			parts = append(parts, domain.ErrInvalidUsername.Error())
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}

// decode reads a JSON body into v and validates it.
func (b base) decode(r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return b.validate.Struct(v)
}

func (b base) profile(w http.ResponseWriter, r *http.Request) (*domain.UserProfile, bool) {
	profile, ok := middleware.GetProfile(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		return nil, false
	}
	return profile, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
