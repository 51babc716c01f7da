// Package credential mints and verifies the signed bearer credentials that carry a snapshot of
// a user's permission codes.
package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// MinSecretLength is the smallest accepted HS512 signing key, in bytes.
const MinSecretLength = 64

// Claims is the payload of a credential.
type Claims struct {
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Issuer signs and validates credentials. Validation checks signature, algorithm and expiry
// only; the embedded permission codes are trusted until the credential expires.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock replaces the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// New constructs an Issuer. Secrets shorter than MinSecretLength are rejected.
func New(secret []byte, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: signing key is %d bytes, need at least %d", shared.ErrConfiguration, len(secret), MinSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: credential ttl must be positive", shared.ErrConfiguration)
	}
	i := &Issuer{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	return i, nil
}

// TTL returns the credential lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a credential for username embedding codes as of now.
func (i *Issuer) Issue(username string, codes []string) (string, error) {
	if username == "" {
		return "", errors.New("credential: username required")
	}
	if codes == nil {
		codes = []string{}
	}
	now := i.now()
	claims := Claims{
		Permissions: codes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("credential: sign: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns its claims. Failures wrap shared.ErrUnauthorized.
func (i *Issuer) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty credential", shared.ErrUnauthorized)
	}
	claims := &Claims{}
	parsed, err := i.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid credential", shared.ErrUnauthorized)
	}
	return claims, nil
}

// Validate reports whether token is correctly signed and unexpired.
func (i *Issuer) Validate(token string) bool {
	_, err := i.Parse(token)
	return err == nil
}

// ExtractUsername returns the subject of a valid token.
func (i *Issuer) ExtractUsername(token string) (string, error) {
	claims, err := i.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractPermissionCodes returns the permission snapshot of a valid token.
func (i *Issuer) ExtractPermissionCodes(token string) ([]string, error) {
	claims, err := i.Parse(token)
	if err != nil {
		return nil, err
	}
	return claims.Permissions, nil
}

// Principal decodes token into the request principal.
func (i *Issuer) Principal(token string) (*shared.Principal, error) {
	claims, err := i.Parse(token)
	if err != nil {
		return nil, err
	}
	return &shared.Principal{Username: claims.Subject, Permissions: claims.Permissions}, nil
}
