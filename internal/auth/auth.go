// server/internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"supply-daddy-api-server/internal/models"
)

// JWTClaims defines the payload for the JWT.
type JWTClaims struct {
	UserID             string      `json:"userId"`
	Email              string      `json:"email"`
	Username           string      `json:"username"`
	Role               models.Role `json:"role"`
	NodeCodes          []string    `json:"nodeCodes,omitempty"`
	FabricEnrollmentID string      `json:"fabricEnrollmentID,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller as seen by services.
func (c *JWTClaims) Identity() Identity {
	return Identity{
		UserID:    c.UserID,
		Username:  c.Username,
		Role:      c.Role,
		NodeCodes: c.NodeCodes,
	}
}

// PasswordCost is the bcrypt cost for new hashes. Tests lower it.
var PasswordCost = 14

// Hashing
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenManager signs and parses HS256 bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager parses ttl as a Go duration ("24h"); empty means 24h.
func NewTokenManager(secret, ttl string) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	d := 24 * time.Hour
	if ttl != "" {
		parsed, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid jwt expiration %q: %w", ttl, err)
		}
		d = parsed
	}
	return &TokenManager{secret: []byte(secret), ttl: d}, nil
}

// JWT Generation
func (m *TokenManager) GenerateJWT(u *models.User) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID:             u.UserID,
		Email:              u.Email,
		Username:           u.Username,
		Role:               u.Role,
		NodeCodes:          u.NodeCodes,
		FabricEnrollmentID: u.FabricEnrollmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *TokenManager) Parse(tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
