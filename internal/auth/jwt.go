// Package auth issues and verifies the HS256 bearer tokens that identify the acting user
// for audit attribution.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is written to and required in every token
const Issuer = "usermanagement"

// MinSecretLength is the recommended minimum length of the signing secret
const MinSecretLength = 32

var (
	ErrMissingSecret = errors.New("jwt secret is not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

// Claims represents the JWT claims structure. Subject carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
}

// Tokens signs and verifies tokens with a shared secret
type Tokens struct {
	secret []byte
}

// NewTokens validates secret and returns a Tokens. An empty secret is an error unless
// devMode is set, in which case a random one is generated and tokens do not survive a
// restart.
func NewTokens(secret string, devMode bool) (*Tokens, error) {
	if secret == "" {
		if !devMode {
			return nil, fmt.Errorf("%w: set UMS_AUTH_JWT_SECRET (go run ./scripts/generate-key.go)", ErrMissingSecret)
		}
		secret = randomSecret()
		slog.Warn("UMS_AUTH_JWT_SECRET not set, using a generated secret; tokens will not persist across restarts")
	} else if len(secret) < MinSecretLength {
		slog.Warn("jwt secret is shorter than recommended", "min_length", MinSecretLength)
	}
	return &Tokens{secret: []byte(secret)}, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Generate creates a token for userID valid for expiresIn (default 1h)
func (t *Tokens) Generate(userID string, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate parses tokenString, checking signature, algorithm, expiry and issuer
func (t *Tokens) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
