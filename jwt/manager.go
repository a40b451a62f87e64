// Package jwt issues and validates the HS256 session tokens returned by login.
// Any validation failure (malformed, expired, wrong signature, wrong issuer)
// is reported uniformly so callers cannot leak which check failed.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for every token that fails validation.
var ErrTokenInvalid = errors.New("invalid token")

// Config holds the signing parameters. Instances are configured during
// initialization and then treated as immutable.
type Config struct {
	SessionTTL time.Duration
	SigningKey []byte
	Issuer     string
	Leeway     time.Duration
}

// Manager signs and parses session tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// SessionClaims is the claim set carried by a session token. The account ID
// is the only application claim; everything else is registered claims.
type SessionClaims struct {
	AccountID string `json:"uid"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("invalid session TTL configuration")
	}
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("signing key must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// CreateSession returns a signed token bound to accountID, expiring after the
// configured TTL.
func (m *Manager) CreateSession(accountID string) (string, error) {
	now := time.Now()

	claims := SessionClaims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.SessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.SigningKey)
}

// ParseSession validates tokenStr and returns its claims. All failure modes
// collapse into ErrTokenInvalid.
func (m *Manager) ParseSession(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return m.config.SigningKey, nil
	}, options...)
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.AccountID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
