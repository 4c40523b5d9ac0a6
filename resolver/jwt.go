package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goliatone/go-tenant/core"
)

// HMACVerifier validates HS256 bearer tokens and extracts the caller
// identity from the sub, role, and tenant_id claims.
type HMACVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the time source used for expiry validation.
func (v *HMACVerifier) WithClock(now func() time.Time) *HMACVerifier {
	if v != nil && now != nil {
		v.now = now
	}
	return v
}

func (v *HMACVerifier) Verify(ctx context.Context, raw string) (core.CallerIdentity, error) {
	if v == nil || len(v.secret) == 0 {
		return core.CallerIdentity{}, core.NewAuthRequiredError("token verifier is not configured")
	}
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return core.CallerIdentity{}, core.NewAuthRequiredError("bearer token is required")
	}

	now := v.now
	if now == nil {
		now = time.Now
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(now))
	if err != nil || !token.Valid {
		return core.CallerIdentity{}, core.NewAuthRequiredError("invalid bearer token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return core.CallerIdentity{}, core.NewAuthRequiredError("invalid token claims")
	}
	subject, _ := claims.GetSubject()
	identity := core.CallerIdentity{
		UserID:   strings.TrimSpace(subject),
		Role:     claimString(claims, "role"),
		TenantID: claimString(claims, "tenant_id"),
	}
	if identity.UserID == "" {
		return core.CallerIdentity{}, core.NewAuthRequiredError("token is missing subject")
	}
	return identity, nil
}

// SignIdentity mints an HS256 token carrying the identity's claims. Used by
// tests and provisioning tools; production credentials come from the auth
// service that shares the secret.
func SignIdentity(secret string, identity core.CallerIdentity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": identity.UserID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if strings.TrimSpace(identity.Role) != "" {
		claims["role"] = identity.Role
	}
	if strings.TrimSpace(identity.TenantID) != "" {
		claims["tenant_id"] = identity.TenantID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func claimString(claims jwt.MapClaims, key string) string {
	value, ok := claims[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

var _ core.TokenVerifier = (*HMACVerifier)(nil)
