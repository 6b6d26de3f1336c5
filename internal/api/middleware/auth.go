package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tastelab/cupping-rooms/internal/domain"
)

type contextKey string

const (
	ProfileKey contextKey = "profile"
)

// TokenVerifier resolves a bearer token to the identity provider subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// ProfileProvisioner loads the profile for a subject, creating it on first
// sight.
type ProfileProvisioner interface {
	EnsureProfile(ctx context.Context, clerkID string) (*domain.UserProfile, error)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func queryOrBearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return bearerToken(r)
}

// Auth requires an Authorization: Bearer token and stores the caller's
// profile in the request context.
func Auth(verifier TokenVerifier, profiles ProfileProvisioner, logger *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(verifier, profiles, logger, bearerToken)
}

// RealtimeAuth also accepts the token as a ?token= query parameter, since
// browsers cannot set headers on websocket upgrades.
func RealtimeAuth(verifier TokenVerifier, profiles ProfileProvisioner, logger *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(verifier, profiles, logger, queryOrBearerToken)
}

func authenticate(verifier TokenVerifier, profiles ProfileProvisioner, logger *slog.Logger, tokenFrom func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFrom(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authorization token required")
				return
			}

			clerkID, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("token_rejected", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
				return
			}

			profile, err := profiles.EnsureProfile(r.Context(), clerkID)
			if err != nil {
				logger.Error("profile_provision_failed", "clerk_id", clerkID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			ctx := context.WithValue(r.Context(), ProfileKey, profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetProfile(ctx context.Context) (*domain.UserProfile, bool) {
	profile, ok := ctx.Value(ProfileKey).(*domain.UserProfile)
	return profile, ok && profile != nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
