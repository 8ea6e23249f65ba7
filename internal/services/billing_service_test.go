package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"notebridge/internal/models"
)

func TestCreditsToTokens(t *testing.T) {
	tests := []struct {
		name    string
		credits int64
		price   int64
		want    int64
	}{
		{"whole conversion", 100, 100, 1_000_000},
		{"floors fractional tokens", 1, 3, 333_333},
		{"cheap model buys more", 50, 10, 5_000_000},
		{"expensive model buys less", 50, 500, 100_000},
		{"zero credits", 0, 100, 0},
		{"zero price is unsellable", 100, 0, 0},
		{"negative price is unsellable", 100, -5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CreditsToTokens(tt.credits, tt.price); got != tt.want {
				t.Errorf("CreditsToTokens(%d, %d) = %d, want %d", tt.credits, tt.price, got, tt.want)
			}
		})
	}
}

func TestTokensToCredits(t *testing.T) {
	tests := []struct {
		name   string
		tokens int64
		price  int64
		want   int64
	}{
		{"whole conversion", 1_000_000, 100, 100},
		{"floors fractional credits", 999_999, 100, 99},
		{"zero price", 1_000_000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokensToCredits(tt.tokens, tt.price); got != tt.want {
				t.Errorf("TokensToCredits(%d, %d) = %d, want %d", tt.tokens, tt.price, got, tt.want)
			}
		})
	}
}

func TestCreditsToTokensRoundTripNeverGains(t *testing.T) {
	// Converting credits to tokens and back must never exceed the original
	// amount, or the cap-error hint could suggest an over-allocation.
	for _, price := range []int64{1, 3, 7, 100, 333, 999} {
		for _, credits := range []int64{1, 2, 10, 99, 12345} {
			back := TokensToCredits(CreditsToTokens(credits, price), price)
			if back > credits {
				t.Fatalf("round trip gained value: %d credits at price %d came back as %d", credits, price, back)
			}
		}
	}
}

func TestCapExceededError(t *testing.T) {
	pricing := models.Pricing{ModelID: "gemini-2.5-flash", PricePerMToken: 100, Category: models.CategoryQuick}

	// Cap 5M, 4.2M already allocated: 800k tokens of headroom = 80 credits.
	appErr := capExceededError("gemini-2.5-flash", pricing, 5_000_000, 4_200_000, 1_000_000)
	if appErr.Code != models.CodeInvalidAmount {
		t.Fatalf("code = %s, want %s", appErr.Code, models.CodeInvalidAmount)
	}
	if got := appErr.Details["max_allocatable_credits"]; got != int64(80) {
		t.Errorf("max_allocatable_credits = %v, want 80", got)
	}
	if got := appErr.Details["category_cap_tokens"]; got != int64(5_000_000) {
		t.Errorf("category_cap_tokens = %v, want 5000000", got)
	}

	// Already at the cap: zero headroom, never negative.
	appErr = capExceededError("gemini-2.5-flash", pricing, 5_000_000, 5_000_000, 1)
	if got := appErr.Details["max_allocatable_credits"]; got != int64(0) {
		t.Errorf("max_allocatable_credits at cap = %v, want 0", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "idx_transactions_iap_id"}
	if !isUniqueViolation(dup) {
		t.Error("23505 must be recognized")
	}
	if !isUniqueViolation(fmt.Errorf("failed to record purchase: %w", dup)) {
		t.Error("wrapped 23505 must be recognized")
	}
	if isUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("a foreign-key violation is not a duplicate")
	}
	if isUniqueViolation(errors.New("pq: connection refused")) {
		t.Error("a plain error is not a duplicate")
	}
}

func TestTokenCapacityLimit(t *testing.T) {
	if got := TokenCapacityLimit(models.CategoryQuick); got != 5_000_000 {
		t.Errorf("quick cap = %d, want 5000000", got)
	}
	if got := TokenCapacityLimit(models.CategoryThink); got != 1_000_000 {
		t.Errorf("think cap = %d, want 1000000", got)
	}
}
