package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"notebridge/internal/database"
	"notebridge/internal/logging"
	"notebridge/internal/models"
	"notebridge/pkg/auth"
)

const oauthStateTTL = 10 * time.Minute

// OAuthService runs the Google Authorization-Code flow for mobile clients.
// The state row binds the in-flight authorization to the device that
// started it and is consumed exactly once by the callback.
type OAuthService struct {
	db             *database.DB
	tokens         *auth.TokenService
	oauthConfig    *oauth2.Config
	deepLinkScheme string
	userinfoURL    string
}

func NewOAuthService(db *database.DB, tokens *auth.TokenService, clientID, clientSecret, redirectURI, deepLinkScheme string) *OAuthService {
	return &OAuthService{
		db:     db,
		tokens: tokens,
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		deepLinkScheme: deepLinkScheme,
		userinfoURL:    "https://www.googleapis.com/oauth2/v2/userinfo",
	}
}

// StartAuth writes a state row for the device and returns the Google
// authorization URL the client should open.
func (s *OAuthService) StartAuth(ctx context.Context, deviceID string) (*models.AuthStartResponse, error) {
	if _, err := uuid.Parse(deviceID); err != nil {
		return nil, models.NewValidationError("device_id must be a valid UUID")
	}

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_states (state, device_id, expires_at)
		VALUES ($1, $2, $3)`,
		state, deviceID, time.Now().Add(oauthStateTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to store oauth state: %w", err)
	}

	authURL := s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)
	return &models.AuthStartResponse{AuthURL: authURL, State: state}, nil
}

// generateState draws 32 random bytes (256 bits), base64url-encoded.
func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CallbackResult tells the handler where to send the browser.
type CallbackResult struct {
	RedirectURL string
	Err         string // coarse error code carried in the redirect, "" on success
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// HandleCallback consumes the state, exchanges the code, upserts
// user+device in one transaction and mints a pair. Every failure maps to a
// coarse error code on the deep link; details stay in the log.
func (s *OAuthService) HandleCallback(ctx context.Context, code, state, errParam string) *CallbackResult {
	if errParam != "" {
		log.Printf("[OAUTH] Provider returned error: %s", errParam)
		return s.errorRedirect("access_denied")
	}
	if code == "" || state == "" {
		return s.errorRedirect("invalid_request")
	}

	deviceID, err := s.consumeState(ctx, state)
	if err != nil {
		logging.SecurityEvent("invalid_oauth_state", "state_prefix", safePrefix(state, 8))
		return s.errorRedirect("invalid_state")
	}

	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		log.Printf("❌ [OAUTH] Code exchange failed: %v", err)
		return s.errorRedirect("exchange_failed")
	}

	info, err := s.fetchUserInfo(ctx, token)
	if err != nil {
		log.Printf("❌ [OAUTH] Userinfo fetch failed: %v", err)
		return s.errorRedirect("userinfo_failed")
	}
	if info.ID == "" || info.Email == "" {
		return s.errorRedirect("userinfo_incomplete")
	}

	var userID string
	var isNewUser bool
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		userID, isNewUser, err = upsertGoogleUserTx(ctx, tx, info)
		if err != nil {
			return err
		}
		return attachDeviceTx(ctx, tx, deviceID, userID)
	})
	if err != nil {
		log.Printf("❌ [OAUTH] Account linking failed: %v", err)
		return s.errorRedirect("server_error")
	}

	access, refresh, err := s.tokens.GeneratePair(userID, deviceID)
	if err != nil {
		log.Printf("❌ [OAUTH] Token issue failed: %v", err)
		return s.errorRedirect("server_error")
	}

	log.Printf("✅ [OAUTH] Google login for %s (new=%v, device=%s)", userID, isNewUser, deviceID)

	params := url.Values{}
	params.Set("access_token", access)
	params.Set("refresh_token", refresh)
	params.Set("user_id", userID)
	params.Set("is_new_user", fmt.Sprintf("%v", isNewUser))
	return &CallbackResult{RedirectURL: s.deepLinkScheme + "://auth?" + params.Encode()}
}

// consumeState deletes the row and returns its device_id. Single use:
// a second call with the same state fails no matter how fresh it is.
func (s *OAuthService) consumeState(ctx context.Context, state string) (string, error) {
	var deviceID string
	err := s.db.GetContext(ctx, &deviceID, `
		DELETE FROM oauth_states
		WHERE state = $1 AND expires_at > now()
		RETURNING device_id`, state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("state missing or expired")
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume state: %w", err)
	}
	return deviceID, nil
}

func (s *OAuthService) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	client := s.oauthConfig.Client(ctx, token)
	resp, err := client.Get(s.userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return &info, nil
}

// upsertGoogleUserTx finds the user by google_id and refreshes the profile
// fields, or creates User+Credit(0) under a fresh user_id.
func upsertGoogleUserTx(ctx context.Context, tx *sqlx.Tx, info *googleUserInfo) (string, bool, error) {
	var userID string
	err := tx.GetContext(ctx, &userID,
		`SELECT user_id FROM users WHERE google_id = $1`, info.ID)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE users
			SET email = $2, display_name = $3, profile_picture_url = $4
			WHERE user_id = $1`,
			userID, info.Email, info.Name, info.Picture)
		if err != nil {
			return "", false, fmt.Errorf("failed to refresh google profile: %w", err)
		}
		return userID, false, nil

	case errors.Is(err, sql.ErrNoRows):
		userID, err = generateUserIDTx(ctx, tx)
		if err != nil {
			return "", false, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (user_id, google_id, email, display_name, profile_picture_url)
			VALUES ($1, $2, $3, $4, $5)`,
			userID, info.ID, info.Email, info.Name, info.Picture)
		if err != nil {
			return "", false, fmt.Errorf("failed to create google user: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credits (user_id, credits) VALUES ($1, 0)`, userID); err != nil {
			return "", false, fmt.Errorf("failed to create credit row: %w", err)
		}
		return userID, true, nil

	default:
		return "", false, fmt.Errorf("failed to look up google user: %w", err)
	}
}

// attachDeviceTx points the device at userID, creating it if needed.
// Taking over a device that belonged to someone else is legal (a shared
// tablet, a resold phone) but always leaves a security log line.
func attachDeviceTx(ctx context.Context, tx *sqlx.Tx, deviceID, userID string) error {
	device, err := getDeviceTx(ctx, tx, deviceID)
	if err != nil {
		return err
	}

	if device == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO devices (device_id, user_id, last_login_at)
			VALUES ($1, $2, now())`, deviceID, userID)
		if err != nil {
			return fmt.Errorf("failed to create device: %w", err)
		}
		return nil
	}

	if device.UserID != userID {
		logging.SecurityEvent("device_reassigned",
			"device_id", deviceID, "from_user", device.UserID, "to_user", userID)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE devices SET user_id = $2, is_active = TRUE, last_login_at = now()
		WHERE device_id = $1`, deviceID, userID)
	if err != nil {
		return fmt.Errorf("failed to reassign device: %w", err)
	}
	return nil
}

// SweepExpiredStates removes abandoned authorization attempts.
func (s *OAuthService) SweepExpiredStates(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep oauth states: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

func (s *OAuthService) errorRedirect(code string) *CallbackResult {
	params := url.Values{}
	params.Set("error", code)
	return &CallbackResult{
		RedirectURL: s.deepLinkScheme + "://auth?" + params.Encode(),
		Err:         code,
	}
}

func safePrefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
