// Package identity issues and verifies account tokens of the venue identity provider.
package identity

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	defaultTokenTTL      = 15 * time.Minute
	defaultSigningMethod = "HS256"
	defaultIssuer        = "venue-identity"

	// HKDF info, changing it invalidates every issued token
	keyInfo = "venuewallet/identity/v1"
	keySize = 32
)

var ErrInvalidToken = errors.New("invalid identity token")

type Claims struct {
	jwt.RegisteredClaims
	AccountID uuid.UUID `json:"aid"`
}

type Config struct {
	// Shared secret of the identity provider
	// Required to be set
	SecretKey string

	// JWT MAC algorithm, HS256 if not set
	Alg string

	// Token lifetime, 15 minutes if not set
	TTL time.Duration

	// Expected "iss" claim
	Issuer string
}

type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Provider struct {
	// Signing key derived from the secret
	key []byte

	alg    jwt.SigningMethod
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func New(cfg Config) (*Provider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported", cfg.Alg)
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultTokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(cfg.SecretKey), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}

	return &Provider{
		key:    key,
		alg:    alg,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Issue token for the account
// Used by local tooling, in production tokens come from the identity service
func (p *Provider) Issue(accountID uuid.UUID) (Token, error) {
	now := p.now().Truncate(time.Second)
	expiresAt := now.Add(p.ttl)

	token := jwt.NewWithClaims(p.alg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.issuer,
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		AccountID: accountID,
	})

	value, err := token.SignedString(p.key)
	if err != nil {
		return Token{}, fmt.Errorf("error while signing token: %w", err)
	}

	return Token{Value: value, ExpiresAt: expiresAt}, nil
}

// Parse and validate token, return the account it was issued for
func (p *Provider) Parse(value string) (uuid.UUID, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) {
			return p.key, nil
		},
		jwt.WithValidMethods([]string{p.alg.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.AccountID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: account claim is missing", ErrInvalidToken)
	}

	return claims.AccountID, nil
}

// Account of the request bearer token
func (p *Provider) Authenticate(r *http.Request) (uuid.UUID, error) {
	header := r.Header.Get("Authorization")
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || value == "" {
		return uuid.Nil, fmt.Errorf("%w: bearer token required", ErrInvalidToken)
	}

	return p.Parse(strings.TrimSpace(value))
}
