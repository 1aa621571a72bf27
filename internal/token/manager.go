// Package token issues and resolves the signed, expiring tokens minted at
// login. Every token carries the user's stable subject identity and a kind
// discriminator so an activation token can never be replayed as an access
// token.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind discriminates token use. Verification requires an exact match.
type Kind string

const (
	KindAccess     Kind = "access"
	KindRefresh    Kind = "refresh"
	KindActivation Kind = "activation"
	KindReset      Kind = "reset"
)

// Claims is the signed payload. Subject holds the canonical UUID identity;
// tokens minted before the migration carry the legacy numeric id instead.
type Claims struct {
	Kind Kind `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is the access/refresh pair issued on a successful login or refresh.
type Pair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Manager signs and verifies tokens (HS256).
type Manager struct {
	cfg Config
	now func() time.Time
}

// NewManager validates cfg and constructs a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, now: time.Now}, nil
}

func (m *Manager) ttlFor(kind Kind) (time.Duration, bool) {
	switch kind {
	case KindAccess:
		return m.cfg.AccessTTL, true
	case KindRefresh:
		return m.cfg.RefreshTTL, true
	case KindActivation:
		return m.cfg.ActivationTTL, true
	case KindReset:
		return m.cfg.ResetTTL, true
	default:
		return 0, false
	}
}

// Issue signs a token of the given kind for subject.
func (m *Manager) Issue(subject string, kind Kind) (string, time.Time, error) {
	ttl, ok := m.ttlFor(kind)
	if !ok {
		return "", time.Time{}, ErrConfig
	}

	now := m.now().UTC()
	exp := now.Add(ttl)

	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.SecretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssuePair issues the access+refresh pair for subject.
func (m *Manager) IssuePair(subject string) (Pair, error) {
	access, accessExp, err := m.Issue(subject, KindAccess)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := m.Issue(subject, KindRefresh)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

// Verify checks signature, expiry, and the kind discriminator, returning the
// subject string. Any failure (malformed, expired, bad signature, wrong kind)
// yields ErrTokenInvalid; verification never panics.
func (m *Manager) Verify(raw string, kind Kind) (string, error) {
	if raw == "" || len(raw) > 8192 {
		return "", ErrTokenInvalid
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(*jwt.Token) (any, error) { return m.cfg.SecretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithLeeway(m.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	if err != nil {
		return "", ErrTokenInvalid
	}
	if claims.Kind != kind {
		return "", ErrTokenInvalid
	}
	if claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
