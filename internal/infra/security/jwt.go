package security

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpiredAccessToken indicates the bearer token is past its expiry.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrInvalidAccessToken indicates the bearer token failed verification.
	ErrInvalidAccessToken = errors.New("invalid access token")
)

// AccessTokenClaims carries the caller identity. UserID falls back to the subject claim.
type AccessTokenClaims struct {
	Roles  []string `json:"roles,omitempty"`
	UserID string   `json:"uid"`
	jwt.RegisteredClaims
}

// TokenVerifier validates RS256 bearer tokens issued by the identity provider.
type TokenVerifier struct {
	keys     KeyProvider
	issuer   string
	audience string
}

// NewTokenVerifier constructs a verifier. Empty issuer or audience skips that check.
func NewTokenVerifier(keys KeyProvider, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{
		keys:     keys,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
	}
}

// ParseAccessToken validates the token and returns its claims.
func (v *TokenVerifier) ParseAccessToken(_ context.Context, token string) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("access token is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid header not found")
		}

		return v.keys.GetVerificationKey(kid)
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		claims.UserID = strings.TrimSpace(claims.Subject)
	}
	if claims.UserID == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}
