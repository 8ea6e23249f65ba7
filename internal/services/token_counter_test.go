package services

import (
	"testing"

	"notebridge/internal/models"
)

// heuristicCounter skips the tiktoken download so counts are deterministic.
func heuristicCounter() *TokenCounter {
	return &TokenCounter{}
}

func TestCountHeuristic(t *testing.T) {
	c := heuristicCounter()
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}
	for _, tt := range tests {
		if got := c.Count(tt.text); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestCountMessagesAddsOverhead(t *testing.T) {
	c := heuristicCounter()
	history := []models.ChatMessage{
		{Role: "user", Content: "abcd"},     // 1 token + 4 overhead
		{Role: "assistant", Content: "ab"},  // 1 token + 4 overhead
	}
	if got := c.CountMessages(history); got != 10 {
		t.Errorf("CountMessages = %d, want 10", got)
	}
	if got := c.CountMessages(nil); got != 0 {
		t.Errorf("CountMessages(nil) = %d, want 0", got)
	}
}

func TestEstimateChatInput(t *testing.T) {
	c := heuristicCounter()
	history := []models.ChatMessage{{Role: "user", Content: "abcd"}} // 5
	// message "abcd" = 1 + 4 overhead, system "abcdefgh" = 2, catalog "abcd" = 1
	if got := c.EstimateChatInput(history, "abcd", "abcdefgh", "abcd"); got != 13 {
		t.Errorf("EstimateChatInput = %d, want 13", got)
	}
}

func TestEstimateOutput(t *testing.T) {
	if got := EstimateOutput(1000); got != 200 {
		t.Errorf("EstimateOutput(1000) = %d, want 200", got)
	}
	if got := EstimateOutput(4); got != 0 {
		t.Errorf("EstimateOutput(4) = %d, want 0", got)
	}
}

func TestConversationUsageFlagsSummary(t *testing.T) {
	c := heuristicCounter()

	small := []models.ChatMessage{{Role: "user", Content: "hello"}}
	usage := c.ConversationUsage(small, 100, 20, 120)
	if usage.NeedsSummary {
		t.Error("small history should not need a summary")
	}
	if usage.InputTokens != 100 || usage.OutputTokens != 20 || usage.TotalTokens != 120 {
		t.Errorf("metered usage not passed through: %+v", usage)
	}
	if usage.MaxTokens != MaxConversationTokens {
		t.Errorf("MaxTokens = %d, want %d", usage.MaxTokens, MaxConversationTokens)
	}

	// 400 messages x (4 chars -> 1 token + 4 overhead) = 2000 tokens... need
	// >= 3200 for the 0.8 threshold, so use longer content.
	big := make([]models.ChatMessage, 400)
	for i := range big {
		big[i] = models.ChatMessage{Role: "user", Content: "0123456789012345678901234567"} // 7 tokens + 4
	}
	usage = c.ConversationUsage(big, 0, 0, 0)
	if !usage.NeedsSummary {
		t.Errorf("large history (ratio %.2f) should need a summary", usage.UsageRatio)
	}
}
