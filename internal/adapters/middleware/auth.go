package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	"github.com/guxdde/base-auth-service/internal/application"
	"github.com/guxdde/base-auth-service/internal/domain"
	"github.com/guxdde/base-auth-service/pkg/contextkeys"
	"github.com/guxdde/base-auth-service/pkg/crypto"
)

const (
	apiKeyHeaderName    = "X-API-Key"
	apiKeyQueryParam    = "x-api-key"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// ClientIP extracts the originating client address. X-Forwarded-For wins
// (first hop), then X-Real-IP, then the socket's remote address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestFingerprint derives the device fingerprint for this connection from
// its User-Agent and client address.
func RequestFingerprint(r *http.Request) string {
	return crypto.DeviceFingerprint(r.Header.Get("User-Agent"), ClientIP(r))
}

// APIKeyAuthMiddleware creates a middleware for API key authentication.
// It checks for an API key in the request header (X-API-Key) or query parameter (x-api-key).
// If the key is missing or invalid, it returns a 401 Unauthorized error.
func APIKeyAuthMiddleware(cfgProvider config.Provider, logger domain.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(apiKeyHeaderName)
			if apiKey == "" {
				apiKey = r.URL.Query().Get(apiKeyQueryParam)
			}

			cfg := cfgProvider.Get()
			if cfg == nil || cfg.Auth.SecretToken == "" {
				logger.Error(r.Context(), "API key authentication failed: SecretToken not configured", "path", r.URL.Path)
				errResp := domain.NewErrorResponse(domain.ErrInternal, "Server configuration error", "API authentication cannot be performed.")
				errResp.WriteJSON(w, http.StatusInternalServerError)
				return
			}

			if apiKey == "" {
				logger.Warn(r.Context(), "API key authentication failed: Key missing", "path", r.URL.Path)
				errResp := domain.NewErrorResponse(domain.ErrInvalidAPIKey, "API key is required", "Provide API key in X-API-Key header or x-api-key query parameter.")
				errResp.WriteJSON(w, http.StatusUnauthorized)
				return
			}

			if apiKey != cfg.Auth.SecretToken {
				logger.Warn(r.Context(), "API key authentication failed: Invalid key", "path", r.URL.Path)
				errResp := domain.NewErrorResponse(domain.ErrInvalidAPIKey, "Invalid API key", "The provided API key is not valid.")
				errResp.WriteJSON(w, http.StatusUnauthorized)
				return
			}

			logger.Debug(r.Context(), "API key authentication successful", "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// BearerAuthMiddleware authenticates requests carrying a user access token in
// the Authorization header. On success the user record, user id and the
// connection's device fingerprint are injected into the request context and
// an access audit record is emitted. All credential failures return the same
// 401 body; the distinguishing cause is only logged.
func BearerAuthMiddleware(authService *application.AuthService, logger domain.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(authorizationHeader)
			if !strings.HasPrefix(header, bearerPrefix) {
				logger.Warn(r.Context(), "Bearer authentication failed: Authorization header missing or malformed", "path", r.URL.Path)
				errResp := domain.NewErrorResponse(domain.ErrInvalidCredential, "Authentication required", "Provide a bearer token in the Authorization header.")
				errResp.WriteJSON(w, http.StatusUnauthorized)
				return
			}
			rawToken := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))

			fingerprint := RequestFingerprint(r)
			user, err := authService.Authenticate(r.Context(), rawToken, fingerprint)
			if err != nil {
				if errors.Is(err, application.ErrInvalidCredential) {
					errResp := domain.NewErrorResponse(domain.ErrInvalidCredential, "Invalid or expired credential", "")
					errResp.WriteJSON(w, http.StatusUnauthorized)
					return
				}
				logger.Error(r.Context(), "Bearer authentication failed", "path", r.URL.Path, "error", err.Error())
				errResp := domain.NewErrorResponse(domain.ErrInternal, "Authentication could not be performed", "")
				errResp.WriteJSON(w, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), contextkeys.AuthUserKey, user)
			ctx = context.WithValue(ctx, contextkeys.UserIDKey, user.ID)
			ctx = context.WithValue(ctx, contextkeys.DeviceIDKey, fingerprint)

			authService.RecordAccess(ctx, domain.AuditRecord{
				UserID:   user.ID,
				Method:   r.Method,
				Resource: r.URL.Path,
				Payload:  r.URL.RawQuery,
				Extra: map[string]any{
					"client_ip":  ClientIP(r),
					"user_agent": r.Header.Get("User-Agent"),
				},
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthenticatedUserFromContext returns the user injected by
// BearerAuthMiddleware, or nil when the request was not authenticated.
func AuthenticatedUserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(contextkeys.AuthUserKey).(*domain.User)
	return user
}
