// Package token issues and verifies the signed bearer tokens that identify callers.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalid is returned for any token that fails parsing, signature or expiry checks.
var ErrInvalid = errors.New("invalid token")

// Claims binds a token to exactly one user.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 tokens.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the issuing clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(secret, issuer string, ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	m := &Manager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue returns a token for userID and its expiry.
func (m *Manager) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalid
	}
	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.ttl)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies tokenString and returns the user it was issued to.
func (m *Manager) Parse(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalid
	}
	claims := &Claims{}
	parsed, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalid
	}
	if claims.ExpiresAt == nil {
		return "", ErrInvalid
	}
	if m.issuer != "" && !claims.VerifyIssuer(m.issuer, true) {
		return "", ErrInvalid
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return "", ErrInvalid
	}
	return claims.UserID, nil
}
