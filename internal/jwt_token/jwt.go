// Package jwttoken issues and validates contributor session tokens for the
// internal (dashboard-facing) endpoints.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
)

// sessionKind marks tokens minted for the contributor dashboard.
const sessionKind = "contributor_session"

const clockSkew = 30 * time.Second

// Claims is the payload of a contributor session. The contributor id is the
// subject.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// SessionTokens signs and verifies HS256 session tokens bound to one issuer
// and audience.
type SessionTokens struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

// Option configures SessionTokens.
type Option func(*SessionTokens)

// WithClock overrides the time source used for iat/exp and validation.
func WithClock(now func() time.Time) Option {
	return func(s *SessionTokens) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSessionTokens(signingKey, issuer, audience string, opts ...Option) *SessionTokens {
	s := &SessionTokens{
		key:      []byte(signingKey),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints a session for contributorID valid for ttl.
func (s *SessionTokens) Issue(contributorID id.ContributorID, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Kind: sessionKind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   contributorID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.key)
}

// Parse verifies signature, issuer, audience, expiry and kind.
func (s *SessionTokens) Parse(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	case err != nil:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	case claims.Kind != sessionKind:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "not a session token")
	}
	return &claims, nil
}

// ValidateSession returns the contributor a session token belongs to.
func (s *SessionTokens) ValidateSession(raw string) (id.ContributorID, error) {
	claims, err := s.Parse(raw)
	if err != nil {
		return id.ContributorID{}, err
	}
	contributorID, err := id.ParseContributorID(claims.Subject)
	if err != nil {
		return id.ContributorID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return contributorID, nil
}
