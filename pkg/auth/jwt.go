package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim. Verification requires an exact
// match; presenting a refresh token where an access token is expected is a
// security event.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Default lifetimes.
const (
	AccessTokenTTL  = 30 * time.Minute
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// MinSecretLength is the shortest JWT secret the process will start with.
const MinSecretLength = 32

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenTypeMismatch = errors.New("token type mismatch")
	ErrSecretTooShort    = fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
	ErrSecretWeak        = errors.New("jwt secret matches a known weak key")
)

// weakSecrets are placeholder values that have shipped in example configs.
// Matching is case-insensitive and exact.
var weakSecrets = []string{
	"secret",
	"password",
	"changeme",
	"your-secret-key",
	"jwt-secret-key",
	"jwt_secret_key",
	"your-256-bit-secret",
	"your-secret-key-change-me-in-production",
	"super-secret-jwt-key-for-development-only",
}

// ValidateSecret enforces the startup key policy: minimum length, no known
// placeholder values, no single repeated character.
func ValidateSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return ErrSecretTooShort
	}
	lowered := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if lowered == weak {
			return ErrSecretWeak
		}
	}
	allSame := true
	for i := 1; i < len(secret); i++ {
		if secret[i] != secret[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return ErrSecretWeak
	}
	return nil
}

// ExtractToken pulls the JWT out of an Authorization header value.
// Supports "Bearer <token>".
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}

// Claims is the full claim set of both token types.
type Claims struct {
	UserID    string `json:"sub"`
	DeviceID  string `json:"device_id"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies the access/refresh pair. The secret is
// validated once at construction and never reloaded.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService validates the secret and returns a ready service.
// Zero durations fall back to the defaults.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	if accessTTL == 0 {
		accessTTL = AccessTokenTTL
	}
	if refreshTTL == 0 {
		refreshTTL = RefreshTokenTTL
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// GeneratePair mints an access and a refresh token bound to (user, device).
func (s *TokenService) GeneratePair(userID, deviceID string) (accessToken, refreshToken string, err error) {
	accessToken, err = s.generate(userID, deviceID, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}
	refreshToken, err = s.generate(userID, deviceID, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (s *TokenService) generate(userID, deviceID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		DeviceID:  deviceID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature and expiry, then requires the "type" claim to
// equal expectedType. Callers must treat ErrTokenTypeMismatch as a security
// event; the client still only ever sees a 401.
func (s *TokenService) Verify(tokenString, expectedType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != expectedType {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrTokenTypeMismatch, claims.TokenType, expectedType)
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RemainingTTL reports how long until the claims expire. Used to blacklist
// revoked tokens for exactly their residual lifetime.
func (c *Claims) RemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	ttl := c.ExpiresAt.Time.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
