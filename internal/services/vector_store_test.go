package services

import (
	"strings"
	"testing"
	"time"
)

func TestTempCollectionName(t *testing.T) {
	now := time.Unix(1762386000, 0)
	if got := TempCollectionName("web", now); got != "web_1762386000" {
		t.Errorf("got %q, want web_1762386000", got)
	}
}

func TestTempCollectionNameDistinctPerSecond(t *testing.T) {
	a := TempCollectionName("web", time.Unix(100, 0))
	b := TempCollectionName("web", time.Unix(101, 0))
	if a == b {
		t.Error("names should differ across seconds")
	}
}

func TestGenerateStateShape(t *testing.T) {
	state, err := generateState()
	if err != nil {
		t.Fatalf("generateState: %v", err)
	}
	// 32 bytes → 43 chars of unpadded base64url.
	if len(state) != 43 {
		t.Errorf("len = %d, want 43", len(state))
	}
	if strings.ContainsAny(state, "+/=") {
		t.Errorf("state %q is not URL-safe", state)
	}
}

func TestGenerateStateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state, err := generateState()
		if err != nil {
			t.Fatalf("generateState: %v", err)
		}
		if seen[state] {
			t.Fatalf("duplicate state after %d draws", i)
		}
		seen[state] = true
	}
}

func TestSafePrefix(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abcdefgh", 4, "abcd"},
		{"ab", 4, "ab"},
		{"", 4, ""},
	}
	for _, tt := range tests {
		if got := safePrefix(tt.in, tt.n); got != tt.want {
			t.Errorf("safePrefix(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
