package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Trusted issuers for inbound webhook tokens. The platform signs callback
// tokens as one of exactly these two.
var DefaultIssuers = []string{
	"https://graph.microsoft.com",
	"https://api.botframework.com",
}

// tenantClaim is the claim carrying the tenant id in platform tokens.
const tenantClaim = "tid"

// Result is the outcome of validating one inbound request. Produced once
// per request and never mutated.
type Result struct {
	Valid    bool
	TenantID string
}

// SigningConfigSource supplies the current signing configuration.
// *Discovery is the production implementation.
type SigningConfigSource interface {
	Config(ctx context.Context) (*SigningConfig, error)
}

// Validator authenticates inbound webhook requests. Verification failure is
// data, not a fault: Validate never returns an error, only an invalid Result.
type Validator struct {
	source SigningConfigSource
	logger *slog.Logger
}

// NewValidator creates a validator backed by the given signing config source.
func NewValidator(source SigningConfigSource, logger *slog.Logger) *Validator {
	return &Validator{
		source: source,
		logger: logger.With("subsystem", "auth"),
	}
}

// webhookClaims are the claims this service inspects on a callback token.
type webhookClaims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// Validate checks the bearer token on an inbound webhook request. The token
// must carry a valid signature from a configured signing key, a trusted
// issuer, the configured audience, and a non-empty tenant claim.
func (v *Validator) Validate(ctx context.Context, r *http.Request) Result {
	token := bearerToken(r)
	if token == "" {
		return Result{}
	}

	cfg, err := v.source.Config(ctx)
	if err != nil {
		v.logger.Error("signing configuration unavailable", "error", err)
		return Result{}
	}

	claims := &webhookClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		key, ok := cfg.Keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		return key, nil
	})
	if err != nil || !parsed.Valid {
		v.logger.Debug("webhook token rejected", "error", err)
		return Result{}
	}

	if !cfg.TrustedIssuer(claims.Issuer) {
		v.logger.Warn("webhook token from untrusted issuer", "issuer", claims.Issuer)
		return Result{}
	}
	if !claims.VerifyAudience(cfg.Audience, true) {
		v.logger.Warn("webhook token has wrong audience")
		return Result{}
	}

	// A structurally valid token without a tenant is still rejected; every
	// downstream action is tenant-scoped.
	if strings.TrimSpace(claims.TenantID) == "" {
		v.logger.Warn("webhook token missing tenant claim", "claim", tenantClaim)
		return Result{}
	}

	return Result{Valid: true, TenantID: claims.TenantID}
}

// bearerToken extracts the bearer token from the Authorization header, or
// returns "" if absent or malformed.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
