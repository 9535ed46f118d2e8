package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/prepa-auth/internal/errors"
	"github.com/pkg/errors"
)

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Claims are the claims carried by both token kinds. The subject is the principal id.
// IssuedAtMillis repeats iat in milliseconds and is what revocation cutoffs compare against.
type Claims struct {
	TokenType      Type  `json:"token_type"`
	IssuedAtMillis int64 `json:"iat_ms"`
	jwt.RegisteredClaims
}

func (c *Claims) issuedAt() time.Time {
	return time.UnixMilli(c.IssuedAtMillis)
}

// Pair is the access and refresh token minted at login.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type Manager struct {
	signer             Signer
	issuer             string
	revocations        RevocationList
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry time.Duration, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithIssuer sets the iss claim and requires it on verification.
func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithRevocationList(list RevocationList) ManagerOption {
	return func(m *Manager) {
		m.revocations = list
	}
}

func New(signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		signer: signer,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = 5 * time.Minute
	}
	if m.refreshTokenExpiry == 0 {
		m.refreshTokenExpiry = 24 * time.Hour
	}
	if m.revocations == nil {
		m.revocations = NewInMemoryRevocationList()
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// IssuePair mints an access and a refresh token for subject.
func (m *Manager) IssuePair(subject string) (*Pair, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("Manager.IssuePair: empty subject")
	}
	now := m.nowFunc()

	access, err := m.sign(subject, TypeAccess, now, m.accessTokenExpiry)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.IssuePair access")
	}
	refresh, err := m.sign(subject, TypeRefresh, now, m.refreshTokenExpiry)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.IssuePair refresh")
	}
	return &Pair{Access: access, Refresh: refresh}, nil
}

// VerifyAccess returns the claims of a valid, unrevoked access token. Every failure is
// ErrInvalidToken.
func (m *Manager) VerifyAccess(rawToken string) (*Claims, error) {
	return m.verify(rawToken, TypeAccess)
}

// Refresh mints a new access token for the subject of a valid refresh token. The refresh
// token itself is not rotated and stays usable until it expires.
func (m *Manager) Refresh(rawRefreshToken string) (string, error) {
	claims, err := m.verify(rawRefreshToken, TypeRefresh)
	if err != nil {
		return "", err
	}
	access, err := m.sign(claims.Subject, TypeAccess, m.nowFunc(), m.accessTokenExpiry)
	if err != nil {
		return "", errors.Wrap(err, "Manager.Refresh")
	}
	return access, nil
}

// RevokeSubject voids every token already issued to subject.
func (m *Manager) RevokeSubject(subject string) {
	m.revocations.RevokeSubject(subject, m.nowFunc())
}

// CleanupRevocations drops cutoffs older than the longest token lifetime; no token they
// could reject is still unexpired.
func (m *Manager) CleanupRevocations() {
	maxLifetime := max(m.accessTokenExpiry, m.refreshTokenExpiry)
	m.revocations.Cleanup(m.nowFunc().Add(-maxLifetime))
}

func (m *Manager) sign(subject string, tokenType Type, now time.Time, expiry time.Duration) (string, error) {
	claims := Claims{
		TokenType:      tokenType,
		IssuedAtMillis: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			ID:        uuid.New().String(),
		},
	}
	return m.signer.Sign(claims)
}

func (m *Manager) verify(rawToken string, want Type) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "empty token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.nowFunc),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(rawToken, claims, m.signer.GetVerificationKey)
	if err != nil || !token.Valid {
		return nil, errors.Wrapf(apperrors.ErrInvalidToken, "parse: %v", err)
	}

	if claims.TokenType != want {
		return nil, errors.Wrapf(apperrors.ErrInvalidToken, "token type %q, want %q", claims.TokenType, want)
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "missing subject")
	}
	if claims.IssuedAt == nil || claims.IssuedAtMillis <= 0 {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "missing iat")
	}
	if m.revocations.IsRevoked(claims.Subject, claims.issuedAt()) {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "revoked")
	}
	return claims, nil
}
