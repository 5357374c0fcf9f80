package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Config controls the API auth layer. Disabled by default: a bot bound
// to localhost doesn't need it, a bot on a network does.
type Config struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"-"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	// bcrypt hash of the operator password, from OPERATOR_PASSWORD_HASH
	OperatorPasswordHash string `json:"-"`
}

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

// Claims is the JWT payload for API sessions
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Service issues and validates operator session tokens
type Service struct {
	config Config
}

// NewService validates the config and returns the service. An enabled
// service without a secret or password hash is a misconfiguration.
func NewService(config Config) (*Service, error) {
	if config.Enabled {
		if len(config.JWTSecret) < 32 {
			return nil, errors.New("auth: JWT secret must be at least 32 bytes")
		}
		if config.OperatorPasswordHash == "" {
			return nil, errors.New("auth: operator password hash not set")
		}
	}
	if config.AccessTokenDuration <= 0 {
		config.AccessTokenDuration = 12 * time.Hour
	}
	return &Service{config: config}, nil
}

// Enabled reports whether the API requires authentication
func (s *Service) Enabled() bool {
	return s.config.Enabled
}

// Login checks the operator password and returns a session token
func (s *Service) Login(password string) (string, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.OperatorPasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		Subject: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token
func (s *Service) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token. A disabled
// service passes everything through.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.config.Enabled {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := s.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}

// HashPassword produces a bcrypt hash for OPERATOR_PASSWORD_HASH
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
