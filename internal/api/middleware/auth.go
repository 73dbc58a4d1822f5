package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dialout/dialout/internal/auth"
	"github.com/dialout/dialout/internal/metrics"
)

// tenantContextKey is the context key for the validated tenant id.
type tenantContextKey string

const tenantIDKey tenantContextKey = "tenant_id"

// WebhookValidator authenticates one inbound webhook request.
// *auth.Validator is the production implementation.
type WebhookValidator interface {
	Validate(ctx context.Context, r *http.Request) auth.Result
}

// RequireWebhookAuth returns middleware that validates the platform's bearer
// token on callback requests. Invalid requests get 403; valid ones continue
// with the tenant id stamped into the request context. counters may be nil.
func RequireWebhookAuth(validator WebhookValidator, counters *metrics.Counters) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := validator.Validate(r.Context(), r)
			if !result.Valid {
				if counters != nil {
					counters.AuthRejections.Add(1)
				}
				slog.Warn("webhook request rejected",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}

			ctx := context.WithValue(r.Context(), tenantIDKey, result.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext retrieves the validated tenant id from the request
// context. Returns "" if not set.
func TenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantIDKey).(string)
	return tenant
}

// authEnvelope matches the api package's envelope format for error responses.
type authEnvelope struct {
	Error string `json:"error,omitempty"`
}

// writeAuthError writes a JSON error matching the API envelope format.
func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(authEnvelope{Error: msg}) //nolint:errcheck
}
