// Package auth issues and verifies the bearer tokens that guard the stats
// and debug HTTP surface (internal/control/statshttp, internal/control/wsdebug).
// There is no refresh-token flow: the control surface is an operator tool,
// not a user-facing session, so a short-lived token re-issued on demand is
// enough.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrExpiredToken     = errors.New("auth: token has expired")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrMissingClaims    = errors.New("auth: missing required claims")
)

// Claims identifies the operator a control-surface token was issued to.
type Claims struct {
	Subject string `json:"sub"`
	Scope   string `json:"scope"` // "stats:read" or "debug:stream"
	jwt.RegisteredClaims
}

// Manager issues and verifies control-surface tokens.
type Manager struct {
	secret []byte
	expire time.Duration
	issuer string
}

// NewManager creates a Manager. expire is the token lifetime.
func NewManager(secret string, expire time.Duration, issuer string) *Manager {
	return &Manager{secret: []byte(secret), expire: expire, issuer: issuer}
}

// IssueToken creates a signed token for subject scoped to scope.
func (m *Manager) IssueToken(subject, scope string) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject: subject,
		Scope:   scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expire)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// VerifyToken validates tokenString's signature, expiry, and required
// claims, returning the decoded Claims on success.
func (m *Manager) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Scope == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

// HasScope reports whether claims authorizes the given scope.
func (c *Claims) HasScope(scope string) bool {
	return c.Scope == scope
}
