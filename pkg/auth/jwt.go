// Package auth validates bearer tokens and attaches their claims to requests.
package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when a request carries no bearer token
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned when a token fails validation
	ErrInvalidToken = errors.New("invalid token")
)

// SubjectClaim is the claim naming the caller.
const SubjectClaim = "userId"

// Claims is the validated claim set of a token.
type Claims map[string]any

// Subject returns the caller named by the token, falling back to "sub".
func (c Claims) Subject() string {
	for _, key := range []string{SubjectClaim, "sub"} {
		if v, ok := c[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// Validator checks HS256 tokens signed with a shared secret.
type Validator struct {
	secret []byte
	parser *jwt.Parser
}

// NewValidator creates a validator from a hex-encoded secret
func NewValidator(secretHex string) (*Validator, error) {
	secret, err := hex.DecodeString(strings.TrimSpace(secretHex))
	if err != nil {
		return nil, fmt.Errorf("auth secret must be hex encoded: %w", err)
	}
	if len(secret) == 0 {
		return nil, errors.New("auth secret is empty")
	}

	return &Validator{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(30*time.Second),
		),
	}, nil
}

// Validate parses token and returns its claims.
func (v *Validator) Validate(token string) (Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return Claims(claims), nil
}

// Sign issues an HS256 token for claims. Used by tooling and tests.
func (v *Validator) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims))
	return token.SignedString(v.secret)
}
