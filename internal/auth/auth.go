// Package auth issues and verifies the two session tokens: a short-lived
// access token carrying the role claim and a longer-lived refresh token
// signed with a separate secret.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"taskline/internal/policy"
)

const bcryptCost = 10

type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Issuer struct {
	Config Config
	Now    func() time.Time
}

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

func (i Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

// AccessToken signs a short-lived HS256 token for the user.
func (i Issuer) AccessToken(userID string, role policy.Role) (string, error) {
	if strings.TrimSpace(i.Config.AccessSecret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.Config.AccessTTL)),
		},
		Role: string(role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.Config.AccessSecret))
}

// RefreshToken signs a refresh token with the refresh secret. It carries
// no role: the role is re-read from the store on refresh.
func (i Issuer) RefreshToken(userID string) (string, error) {
	if strings.TrimSpace(i.Config.RefreshSecret) == "" {
		return "", errors.New("refresh secret not configured")
	}
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.Config.RefreshTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.Config.RefreshSecret))
}

func verify(token, secret string, now func() time.Time) (Claims, error) {
	if strings.TrimSpace(secret) == "" {
		return Claims{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("subject claim required")
	}
	return *claims, nil
}

// VerifyAccess validates an access token and returns its claims.
func (i Issuer) VerifyAccess(token string) (Claims, error) {
	return verify(token, i.Config.AccessSecret, i.now)
}

// VerifyRefresh validates a refresh token and returns the subject.
func (i Issuer) VerifyRefresh(token string) (string, error) {
	claims, err := verify(token, i.Config.RefreshSecret, i.now)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) < 6 {
		return "", fmt.Errorf("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a stored hash against a candidate password.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
