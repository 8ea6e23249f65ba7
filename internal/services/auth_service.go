package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"notebridge/internal/database"
	"notebridge/internal/logging"
	"notebridge/internal/models"
	"notebridge/pkg/auth"
)

// AuthService owns device identity and the JWT lifecycle.
type AuthService struct {
	db        *database.DB
	tokens    *auth.TokenService
	blacklist TokenBlacklist
}

func NewAuthService(db *database.DB, tokens *auth.TokenService, blacklist TokenBlacklist) *AuthService {
	return &AuthService{db: db, tokens: tokens, blacklist: blacklist}
}

// RegisterResult is what Register hands back to the handler.
type RegisterResult struct {
	UserID       string
	IsNewUser    bool
	AccessToken  string
	RefreshToken string
}

// Register is idempotent on device_id. A known device gets its
// last_login_at refreshed; an unknown one gets a fresh user with a zero
// credit row, all in one transaction. Either way a new token pair is minted.
func (s *AuthService) Register(ctx context.Context, deviceID, deviceName, deviceType string) (*RegisterResult, error) {
	if _, err := uuid.Parse(deviceID); err != nil {
		return nil, models.NewValidationError("device_id must be a valid UUID")
	}
	switch deviceType {
	case "", "ios", "android", "web":
	default:
		return nil, models.NewValidationError("device_type must be one of ios, android, web")
	}

	var result RegisterResult
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		device, err := getDeviceTx(ctx, tx, deviceID)
		if err != nil {
			return err
		}

		if device != nil {
			result.UserID = device.UserID
			result.IsNewUser = false
			_, err = tx.ExecContext(ctx, `
				UPDATE devices SET last_login_at = now(), is_active = TRUE
				WHERE device_id = $1`, deviceID)
			if err != nil {
				return fmt.Errorf("failed to touch device: %w", err)
			}
			return nil
		}

		userID, err := generateUserIDTx(ctx, tx)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (user_id) VALUES ($1)`, userID); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO credits (user_id, credits) VALUES ($1, 0)`, userID); err != nil {
			return fmt.Errorf("failed to create credit row: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO devices (device_id, user_id, device_name, device_type, last_login_at)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), now())`,
			deviceID, userID, deviceName, deviceType); err != nil {
			return fmt.Errorf("failed to create device: %w", err)
		}

		result.UserID = userID
		result.IsNewUser = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.tokens.GeneratePair(result.UserID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	result.AccessToken = access
	result.RefreshToken = refresh

	if result.IsNewUser {
		log.Printf("[AUTH] New user %s registered from device %s", result.UserID, deviceID)
	}
	return &result, nil
}

const userIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomBase36 draws n alphabet characters via rejection sampling: bytes
// at or above 252 (the largest multiple of 36 below 256) are discarded so
// every character is equally likely.
func randomBase36(n int) (string, error) {
	const limit = 252
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, userIDAlphabet[int(b)%len(userIDAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// generateUserIDTx draws user_ + 9 chars of [a-z0-9] and retries on
// collision, giving up after 10 attempts.
func generateUserIDTx(ctx context.Context, tx *sqlx.Tx) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		suffix, err := randomBase36(9)
		if err != nil {
			return "", err
		}
		candidate := "user_" + suffix

		var exists bool
		if err := tx.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, candidate); err != nil {
			return "", fmt.Errorf("failed to check user_id collision: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique user_id after 10 attempts")
}

// Refresh rotates the pair: the presented refresh token is verified,
// blacklist-checked, then retired for its residual lifetime while a fresh
// pair is minted for the same (user, device).
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	claims, err := s.tokens.Verify(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, auth.ErrTokenTypeMismatch) {
			logging.SecurityEvent("token_type_mismatch", "expected", auth.TokenTypeRefresh)
		}
		return "", "", models.NewUnauthorizedError()
	}

	blacklisted, err := s.blacklist.IsBlacklisted(ctx, refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("blacklist check failed: %w", err)
	}
	if blacklisted {
		logging.SecurityEvent("blacklisted_refresh_replay", "user_id", claims.UserID, "device_id", claims.DeviceID)
		return "", "", models.NewUnauthorizedError()
	}

	device, err := s.GetDevice(ctx, claims.DeviceID)
	if err != nil {
		return "", "", err
	}
	if device == nil || !device.IsActive {
		logging.SecurityEvent("unknown_device", "device_id", claims.DeviceID, "during", "refresh")
		return "", "", models.NewUnauthorizedError()
	}
	if device.UserID != claims.UserID {
		// The device was reassigned (OAuth login by another account) after
		// this token was minted.
		logging.SecurityEvent("user_id_mismatch",
			"device_id", claims.DeviceID, "token_user", claims.UserID, "device_user", device.UserID)
		return "", "", models.NewUnauthorizedError()
	}

	access, refresh, err = s.tokens.GeneratePair(claims.UserID, claims.DeviceID)
	if err != nil {
		return "", "", fmt.Errorf("failed to issue tokens: %w", err)
	}

	if err := s.blacklist.Add(ctx, refreshToken, claims.RemainingTTL(time.Now())); err != nil {
		// Rotation is best-effort; the new pair is already signed.
		log.Printf("⚠️ [AUTH] Failed to retire consumed refresh token: %v", err)
	}

	return access, refresh, nil
}

// VerifyDevice checks the device→user association. On mismatch it returns
// the server's user_id so the client can heal; it never rewrites the device.
func (s *AuthService) VerifyDevice(ctx context.Context, deviceID, clientUserID string) (*models.VerifyResponse, error) {
	device, err := s.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, models.NewNotFoundError("device not found")
	}

	if device.UserID != clientUserID {
		logging.SecurityEvent("user_id_mismatch",
			"device_id", deviceID, "client_user", clientUserID, "server_user", device.UserID)
		return &models.VerifyResponse{
			Valid:   false,
			UserID:  device.UserID,
			Message: "user mismatch; use the returned user_id",
		}, nil
	}

	return &models.VerifyResponse{Valid: true, UserID: device.UserID, Message: "ok"}, nil
}

// Logout blacklists both tokens for their residual lifetimes. Tokens that
// no longer verify are skipped; they cannot authenticate anyway.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	now := time.Now()
	for _, t := range []struct {
		raw  string
		kind string
	}{
		{accessToken, auth.TokenTypeAccess},
		{refreshToken, auth.TokenTypeRefresh},
	} {
		if t.raw == "" {
			continue
		}
		claims, err := s.tokens.Verify(t.raw, t.kind)
		if err != nil {
			continue
		}
		if err := s.blacklist.Add(ctx, t.raw, claims.RemainingTTL(now)); err != nil {
			return fmt.Errorf("failed to blacklist %s token: %w", t.kind, err)
		}
	}
	return nil
}

// AuthenticateAccess is the middleware entry point: signature, expiry,
// type, blacklist, then device existence. Every failure collapses to an
// opaque 401; the distinguishing detail goes to the security log only.
func (s *AuthService) AuthenticateAccess(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(token, auth.TokenTypeAccess)
	if err != nil {
		if errors.Is(err, auth.ErrTokenTypeMismatch) {
			logging.SecurityEvent("token_type_mismatch", "expected", auth.TokenTypeAccess)
		}
		return nil, models.NewUnauthorizedError()
	}

	blacklisted, err := s.blacklist.IsBlacklisted(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("blacklist check failed: %w", err)
	}
	if blacklisted {
		return nil, models.NewUnauthorizedError()
	}

	device, err := s.GetDevice(ctx, claims.DeviceID)
	if err != nil {
		return nil, err
	}
	if device == nil || !device.IsActive {
		logging.SecurityEvent("unknown_device", "device_id", claims.DeviceID)
		return nil, models.NewUnauthorizedError()
	}
	if device.UserID != claims.UserID {
		logging.SecurityEvent("user_id_mismatch",
			"device_id", claims.DeviceID, "token_user", claims.UserID, "device_user", device.UserID)
		return nil, models.NewUnauthorizedError()
	}

	return claims, nil
}

// GetDevice returns nil, nil when the device does not exist.
func (s *AuthService) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	var device models.Device
	err := s.db.GetContext(ctx, &device, `
		SELECT device_id, user_id, device_name, device_type, is_active, created_at, last_login_at
		FROM devices WHERE device_id = $1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	return &device, nil
}

// ListDevices returns the caller's devices, newest first.
func (s *AuthService) ListDevices(ctx context.Context, userID string) ([]models.Device, error) {
	devices := []models.Device{}
	err := s.db.SelectContext(ctx, &devices, `
		SELECT device_id, user_id, device_name, device_type, is_active, created_at, last_login_at
		FROM devices WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// DisableDevice soft-disables one of the caller's devices, invalidating its
// sessions at the next middleware check.
func (s *AuthService) DisableDevice(ctx context.Context, userID, deviceID string) error {
	device, err := s.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return models.NewNotFoundError("device not found")
	}
	if device.UserID != userID {
		return models.NewForbiddenError("device belongs to another user")
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE devices SET is_active = FALSE WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("failed to disable device: %w", err)
	}
	log.Printf("[AUTH] Device %s disabled by %s", deviceID, userID)
	return nil
}

func getDeviceTx(ctx context.Context, tx *sqlx.Tx, deviceID string) (*models.Device, error) {
	var device models.Device
	err := tx.GetContext(ctx, &device, `
		SELECT device_id, user_id, device_name, device_type, is_active, created_at, last_login_at
		FROM devices WHERE device_id = $1 FOR UPDATE`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	return &device, nil
}
