// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the lifetime of issued tokens when none is configured.
const DefaultTokenTTL = time.Hour

// MinTokenSecretLength is the shortest HMAC key accepted.
const MinTokenSecretLength = 32

// TokenIssuer produces opaque session tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(subjectID int64, username string) (string, error)
}

// TokenClaims are the claims carried by tokens issued by JWTIssuer.
type TokenClaims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// SubjectID parses the numeric account ID from the subject claim.
func (c *TokenClaims) SubjectID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, oops.Code("AUTH_INVALID_TOKEN").With("sub", c.Subject).Wrap(err)
	}
	return id, nil
}

// JWTIssuer issues HS256-signed JWTs.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// JWTOption configures a JWTIssuer.
type JWTOption func(*JWTIssuer)

// WithTokenTTL sets the token lifetime.
func WithTokenTTL(ttl time.Duration) JWTOption {
	return func(j *JWTIssuer) {
		if ttl > 0 {
			j.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) JWTOption {
	return func(j *JWTIssuer) {
		j.issuer = issuer
	}
}

// WithTokenClock replaces the time source used for iat and exp.
func WithTokenClock(now func() time.Time) JWTOption {
	return func(j *JWTIssuer) {
		if now != nil {
			j.now = now
		}
	}
}

// NewJWTIssuer creates an issuer signing with secret, which must be at least
// 32 bytes long.
func NewJWTIssuer(secret []byte, opts ...JWTOption) (*JWTIssuer, error) {
	if len(secret) < MinTokenSecretLength {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("min_length", MinTokenSecretLength).
			Errorf("token secret too short")
	}
	j := &JWTIssuer{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Issue signs a token for the account. Every token carries a fresh ULID as
// its jti, so two tokens issued in the same instant still differ.
func (j *JWTIssuer) Issue(subjectID int64, username string) (string, error) {
	now := j.now()
	claims := TokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   strconv.FormatInt(subjectID, 10),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_FAILED").With("subject", subjectID).Wrap(err)
	}
	return signed, nil
}

// Validate checks the signature, algorithm and expiry of token and returns
// its claims.
func (j *JWTIssuer) Validate(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_TOKEN").Wrap(err)
	}
	if !parsed.Valid {
		return nil, oops.Code("AUTH_INVALID_TOKEN").Errorf("token is not valid")
	}
	return claims, nil
}
