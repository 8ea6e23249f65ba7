package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "unit-test-signing-key-0123456789abcdef"

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr error
	}{
		{"valid", testSecret, nil},
		{"too short", "short-key", ErrSecretTooShort},
		{"empty", "", ErrSecretTooShort},
		{"known weak", "your-secret-key-change-me-in-production", ErrSecretWeak},
		{"known weak uppercase", "YOUR-SECRET-KEY-CHANGE-ME-IN-PRODUCTION", ErrSecretWeak},
		{"repeated char", strings.Repeat("a", 64), ErrSecretWeak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecret(tt.secret)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSecret(%q) = %v, want %v", tt.secret, err, tt.wantErr)
			}
		})
	}
}

func TestNewTokenServiceRejectsWeakSecret(t *testing.T) {
	if _, err := NewTokenService("changeme", 0, 0); err == nil {
		t.Fatal("expected error for weak secret")
	}
}

func TestGenerateAndVerifyPair(t *testing.T) {
	svc, err := NewTokenService(testSecret, 0, 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	access, refresh, err := svc.GeneratePair("user_abc123def", "11111111-1111-4111-8111-111111111111")
	if err != nil {
		t.Fatalf("GeneratePair: %v", err)
	}
	if access == refresh {
		t.Fatal("access and refresh tokens must differ")
	}

	accessClaims, err := svc.Verify(access, TokenTypeAccess)
	if err != nil {
		t.Fatalf("Verify(access): %v", err)
	}
	if accessClaims.UserID != "user_abc123def" {
		t.Errorf("access sub = %q, want user_abc123def", accessClaims.UserID)
	}
	if accessClaims.DeviceID != "11111111-1111-4111-8111-111111111111" {
		t.Errorf("access device_id = %q", accessClaims.DeviceID)
	}

	refreshClaims, err := svc.Verify(refresh, TokenTypeRefresh)
	if err != nil {
		t.Fatalf("Verify(refresh): %v", err)
	}
	if refreshClaims.TokenType != TokenTypeRefresh {
		t.Errorf("refresh type = %q", refreshClaims.TokenType)
	}
}

func TestVerifyTypeMismatch(t *testing.T) {
	svc, _ := NewTokenService(testSecret, 0, 0)
	access, refresh, err := svc.GeneratePair("user_abc123def", "dev-1")
	if err != nil {
		t.Fatalf("GeneratePair: %v", err)
	}

	if _, err := svc.Verify(refresh, TokenTypeAccess); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Errorf("refresh-as-access = %v, want ErrTokenTypeMismatch", err)
	}
	if _, err := svc.Verify(access, TokenTypeRefresh); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Errorf("access-as-refresh = %v, want ErrTokenTypeMismatch", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	svc, _ := NewTokenService(testSecret, time.Millisecond, time.Millisecond)
	access, _, err := svc.GeneratePair("user_abc123def", "dev-1")
	if err != nil {
		t.Fatalf("GeneratePair: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, err := svc.Verify(access, TokenTypeAccess); err == nil {
		t.Fatal("expected expired token to fail verification")
	}
}

func TestVerifyTamperedToken(t *testing.T) {
	svc, _ := NewTokenService(testSecret, 0, 0)
	other, _ := NewTokenService(testSecret+"-other-key-material", 0, 0)

	access, _, err := other.GeneratePair("user_abc123def", "dev-1")
	if err != nil {
		t.Fatalf("GeneratePair: %v", err)
	}

	if _, err := svc.Verify(access, TokenTypeAccess); err == nil {
		t.Fatal("expected foreign-signed token to fail verification")
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"bearer", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"lowercase bearer", "bearer abc.def.ghi", "abc.def.ghi", false},
		{"empty", "", "", true},
		{"no scheme", "abc.def.ghi", "", true},
		{"wrong scheme", "Basic abc", "", true},
		{"empty token", "Bearer  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractToken(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestRemainingTTL(t *testing.T) {
	svc, _ := NewTokenService(testSecret, 30*time.Minute, 0)
	access, _, err := svc.GeneratePair("user_abc123def", "dev-1")
	if err != nil {
		t.Fatalf("GeneratePair: %v", err)
	}
	claims, err := svc.Verify(access, TokenTypeAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	ttl := claims.RemainingTTL(time.Now())
	if ttl <= 29*time.Minute || ttl > 30*time.Minute {
		t.Errorf("RemainingTTL = %v, want just under 30m", ttl)
	}
	if got := claims.RemainingTTL(time.Now().Add(time.Hour)); got != 0 {
		t.Errorf("RemainingTTL past expiry = %v, want 0", got)
	}
}
