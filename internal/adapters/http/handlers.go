package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/guxdde/base-auth-service/internal/adapters/middleware"
	"github.com/guxdde/base-auth-service/internal/application"
	"github.com/guxdde/base-auth-service/internal/domain"
)

// TenantTokenRequest is the expected payload for /auth/tenant/token.
type TenantTokenRequest struct {
	AppID     string `json:"app_id"`
	Signature string `json:"signature"`
}

// TenantRefreshRequest is the expected payload for /auth/tenant/refresh.
type TenantRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserTokenRequest is the expected payload for /auth/user/token.
type UserTokenRequest struct {
	UserID int64 `json:"user_id"`
}

// UserTokenResponse is the response from /auth/user/token.
type UserTokenResponse struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body) // Best effort, error from Encode is not typically handled here.
}

// UserProfileHandler returns the authenticated caller's user record. The
// lookup is served through the tagged result cache under the caller's scope,
// so durable reads are skipped while the entry is warm.
func UserProfileHandler(resultCache *application.ResultCache, users domain.UserStore, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authUser := middleware.AuthenticatedUserFromContext(r.Context())
		if authUser == nil {
			domain.NewErrorResponse(domain.ErrInvalidCredential, "Authentication required", "").WriteJSON(w, http.StatusUnauthorized)
			return
		}

		user, err := application.Cached(r.Context(), resultCache, application.UserScope(authUser.ID),
			"user:profile", 0, "FindUserByID", []any{authUser.ID},
			func(ctx context.Context) (*domain.User, error) {
				return users.FindUserByID(ctx, authUser.ID)
			})
		if err != nil {
			logger.Error(r.Context(), "User profile lookup failed", "user_id", authUser.ID, "error", err.Error())
			domain.NewErrorResponse(domain.ErrInternal, "Profile lookup failed", "").WriteJSON(w, http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, user)
	}
}

// TenantTokenHandler exchanges app credentials for an access/refresh token
// pair. Every credential failure returns the same envelope; causes are only
// logged server-side.
func TenantTokenHandler(tenantAuth *application.TenantAuthService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqPayload TenantTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
			logger.Warn(r.Context(), "Failed to decode /auth/tenant/token payload", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		result, err := tenantAuth.GetTenantAuthToken(r.Context(), reqPayload.AppID, reqPayload.Signature)
		if err != nil {
			logger.Error(r.Context(), "Tenant token issuance failed", "app_id", reqPayload.AppID, "error", err.Error())
			domain.NewErrorResponse(domain.ErrInternal, "Token issuance failed", "").WriteJSON(w, http.StatusInternalServerError)
			return
		}
		if !result.Success {
			writeJSON(w, http.StatusUnauthorized, result)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// TenantRefreshHandler exchanges a refresh token for a fresh access token.
// The refresh token itself is echoed back unchanged.
func TenantRefreshHandler(tenantAuth *application.TenantAuthService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqPayload TenantRefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
			logger.Warn(r.Context(), "Failed to decode /auth/tenant/refresh payload", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		result, err := tenantAuth.RefreshTenantAuthToken(r.Context(), reqPayload.RefreshToken)
		if err != nil {
			logger.Error(r.Context(), "Tenant token refresh failed", "error", err.Error())
			domain.NewErrorResponse(domain.ErrInternal, "Token refresh failed", "").WriteJSON(w, http.StatusInternalServerError)
			return
		}
		if !result.Success {
			writeJSON(w, http.StatusUnauthorized, result)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// UserTokenHandler mints a device-bound user access token. The device
// fingerprint is derived from the calling connection and admitted to the
// user's active device set, which may evict the user's oldest session.
// The route is protected by APIKeyAuthMiddleware.
func UserTokenHandler(authService *application.AuthService, devices *application.DeviceRegistry, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqPayload UserTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
			logger.Warn(r.Context(), "Failed to decode /auth/user/token payload", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if reqPayload.UserID <= 0 {
			logger.Warn(r.Context(), "Invalid payload for /auth/user/token", "user_id", reqPayload.UserID)
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid payload", "positive user_id is required.").WriteJSON(w, http.StatusBadRequest)
			return
		}

		deviceID := middleware.RequestFingerprint(r)
		if err := devices.AddDevice(r.Context(), reqPayload.UserID, deviceID); err != nil {
			logger.Error(r.Context(), "Device admission failed", "user_id", reqPayload.UserID, "error", err.Error())
			domain.NewErrorResponse(domain.ErrInternal, "Failed to register device", "").WriteJSON(w, http.StatusInternalServerError)
			return
		}

		token, err := authService.IssueUserToken(reqPayload.UserID, deviceID)
		if err != nil {
			logger.Error(r.Context(), "User token issuance failed", "user_id", reqPayload.UserID, "error", err.Error())
			domain.NewErrorResponse(domain.ErrInternal, "Failed to issue token", "").WriteJSON(w, http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, UserTokenResponse{Token: token, DeviceID: deviceID})
	}
}
