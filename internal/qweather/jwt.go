package qweather

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenLifetime = 15 * time.Minute
	// Clock skew allowance: iat is backdated so a slightly fast upstream
	// clock does not reject a freshly signed token.
	tokenBackdate = 30 * time.Second
	// Re-sign when less than this much validity remains.
	tokenRefreshWindow = 60 * time.Second
)

// TokenSigner issues EdDSA bearer tokens for the QWeather API and caches the
// current one until it is close to expiry. Safe for concurrent use.
type TokenSigner struct {
	kid string
	sub string
	key ed25519.PrivateKey

	mu      sync.Mutex
	token   string
	expires time.Time

	now func() time.Time // test hook
}

// NewTokenSigner parses a PKCS8 Ed25519 private key in PEM form.
func NewTokenSigner(kid, sub string, pemKey []byte) (*TokenSigner, error) {
	if kid == "" || sub == "" {
		return nil, fmt.Errorf("jwt credential id and project id are required")
	}
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, fmt.Errorf("private key is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want ed25519", parsed)
	}
	return &TokenSigner{kid: kid, sub: sub, key: key, now: time.Now}, nil
}

// NewTokenSignerFromFile reads the key file and delegates to NewTokenSigner.
func NewTokenSignerFromFile(kid, sub, path string) (*TokenSigner, error) {
	pemKey, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file: %w", err)
	}
	return NewTokenSigner(kid, sub, pemKey)
}

// Bearer returns a signed token, reusing the cached one while it has more
// than tokenRefreshWindow of validity left.
func (s *TokenSigner) Bearer() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && s.expires.Sub(now) > tokenRefreshWindow {
		return s.token, nil
	}

	iat := now.Add(-tokenBackdate)
	exp := iat.Add(tokenLifetime)

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub": s.sub,
		"iat": iat.Unix(),
		"exp": exp.Unix(),
	})
	tok.Header["kid"] = s.kid

	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	s.token = signed
	s.expires = exp
	return signed, nil
}
