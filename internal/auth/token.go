package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/acme/campaign-dispatch/pkg/errors"
)

// RoleService marks trusted internal callers such as the tick trigger or a live call.
const RoleService = "service"

// Claims carried by session and service tokens.
type Claims struct {
	OrgID  string `json:"org_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsService reports whether the token belongs to a trusted service principal.
func (c *Claims) IsService() bool {
	return c != nil && c.Role == RoleService
}

// Verifier signs and checks HS256 tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier constructs a verifier.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Issue signs claims valid for ttl.
func (v *Verifier) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a raw token, with or without a "Bearer " prefix.
func (v *Verifier) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: missing token", apperrors.ErrUnauthorized)
	}
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: token verification not configured", apperrors.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

// ResolveOrg picks the tenant a request acts for. A session's own org wins;
// an explicit org id is honoured only for service principals.
func ResolveOrg(claims *Claims, explicit string) (uuid.UUID, error) {
	if claims != nil && claims.OrgID != "" {
		id, err := uuid.Parse(claims.OrgID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: malformed org in session", apperrors.ErrUnauthorized)
		}
		return id, nil
	}

	explicit = strings.TrimSpace(explicit)
	if explicit == "" || !claims.IsService() {
		return uuid.Nil, fmt.Errorf("%w: no organization context", apperrors.ErrUnauthorized)
	}

	id, err := uuid.Parse(explicit)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: org_id must be a uuid", apperrors.ErrValidation)
	}
	return id, nil
}
