// Package auth gates the control API's mutating routes behind a
// single operator credential: a bcrypt-hashed password configured at
// startup, exchanged for a short-lived JWT bearer token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Authenticate on a username or
// password mismatch. Deliberately undifferentiated so a caller can't
// enumerate valid usernames.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Claims is the JWT payload. There is exactly one operator, so the
// subject is fixed rather than looked up.
type Claims struct {
	jwt.RegisteredClaims
}

// Service authenticates the configured operator and issues/validates
// bearer tokens.
type Service struct {
	username     string
	passwordHash []byte
	secretKey    []byte
	tokenTTL     time.Duration
	logger       zerolog.Logger
}

// NewService constructs the auth service from operator credentials
// loaded by internal/config (password already bcrypt-hashed).
func NewService(username, passwordHash, secretKey string, tokenTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		username:     username,
		passwordHash: []byte(passwordHash),
		secretKey:    []byte(secretKey),
		tokenTTL:     tokenTTL,
		logger:       logger,
	}
}

// Authenticate checks username/password and, on success, issues a
// signed bearer token.
func (s *Service) Authenticate(username, password string) (string, error) {
	if username != s.username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.username,
			Issuer:    "quantengine",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}

	s.logger.Info().Str("username", username).Msg("operator authenticated")
	return signed, nil
}

// ValidateToken parses and verifies a bearer token, returning its
// claims if valid.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	return claims, nil
}

// HashPassword bcrypt-hashes a plaintext password for storage in
// config (an operator runs this once, offline, to populate
// auth.password_hash).
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hashed), nil
}
