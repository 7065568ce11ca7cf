package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials indicates that the provided password is incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for missing, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid token")
)

const tokenSubject = "spate"

// AuthService guards the command surface with a single password and bearer tokens.
type AuthService interface {
	Enabled() bool
	Login(password string) (string, time.Time, error)
	Verify(token string) error
}

type authService struct {
	secret       []byte
	passwordHash []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewAuthService returns a service that is disabled when secret is empty.
// passwordHash is a bcrypt hash.
func NewAuthService(secret, passwordHash string, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &authService{
		secret:       []byte(strings.TrimSpace(secret)),
		passwordHash: []byte(strings.TrimSpace(passwordHash)),
		ttl:          ttl,
		now:          time.Now,
	}
}

func (s *authService) Enabled() bool {
	return len(s.secret) > 0
}

func (s *authService) Login(password string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, fmt.Errorf("auth is not configured")
	}
	if len(s.passwordHash) == 0 || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := s.now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   tokenSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (s *authService) Verify(raw string) error {
	if !s.Enabled() {
		return nil
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(claims.Subject), []byte(tokenSubject)) != 1 {
		return ErrInvalidToken
	}
	return nil
}
