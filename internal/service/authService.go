package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService guards the REST admin surface. There is a single admin
// identity configured by a bcrypt password hash in the environment; a
// successful login yields a short-lived JWT.
type AuthService struct {
	passwordHash []byte
	jwtSecret    []byte // Stored in env (JWT_SECRET)
	jwtExpiry    time.Duration
}

func NewAuthService(passwordHash, secret string, expiryHours int) *AuthService {
	return &AuthService{
		passwordHash: []byte(passwordHash),
		jwtSecret:    []byte(secret),
		jwtExpiry:    time.Duration(expiryHours) * time.Hour,
	}
}

// Enabled reports whether admin login is configured at all.
func (s *AuthService) Enabled() bool {
	return len(s.passwordHash) > 0 && len(s.jwtSecret) > 0
}

// Authenticates the admin and returns a JWT token
func (s *AuthService) Login(password string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("admin login is not configured")
	}

	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(s.jwtExpiry).Unix(),
		"iat":  time.Now().Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// Validates a JWT token and return the claims
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verifying signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
