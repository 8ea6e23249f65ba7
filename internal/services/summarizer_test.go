package services

import (
	"fmt"
	"strings"
	"testing"

	"notebridge/internal/models"
)

func historyOfLength(n int) []models.ChatMessage {
	out := make([]models.ChatMessage, n)
	for i := range out {
		role := "user"
		if i%2 == 1 {
			role = "ai"
		}
		out[i] = models.ChatMessage{Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return out
}

func TestSplitHistory(t *testing.T) {
	tests := []struct {
		name           string
		total          int
		preserveRecent int
		wantOld        int
		wantRecent     int
	}{
		{"shorter than tail", 5, 10, 0, 5},
		{"exactly the tail", 10, 10, 0, 10},
		{"one to compress", 11, 10, 1, 10},
		{"long history", 50, 10, 40, 10},
		{"zero uses default", 25, 0, 15, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old, recent := splitHistory(historyOfLength(tt.total), tt.preserveRecent)
			if len(old) != tt.wantOld || len(recent) != tt.wantRecent {
				t.Errorf("splitHistory = %d old, %d recent; want %d, %d",
					len(old), len(recent), tt.wantOld, tt.wantRecent)
			}
		})
	}
}

func TestSplitHistoryKeepsOrder(t *testing.T) {
	history := historyOfLength(20)
	old, recent := splitHistory(history, 5)
	if old[len(old)-1].Content != "message 14" {
		t.Errorf("last old message = %q, want message 14", old[len(old)-1].Content)
	}
	if recent[0].Content != "message 15" {
		t.Errorf("first recent message = %q, want message 15", recent[0].Content)
	}
}

func TestSummaryMaxTokens(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{0, defaultSummaryMaxTokens},
		{-5, defaultSummaryMaxTokens},
		{500, 500},
		{8000, 8000},
	}
	for _, tt := range tests {
		if got := summaryMaxTokens(tt.requested); got != tt.want {
			t.Errorf("summaryMaxTokens(%d) = %d, want %d", tt.requested, got, tt.want)
		}
	}
}

func TestFormatForSummary(t *testing.T) {
	transcript := formatForSummary([]models.ChatMessage{
		{Role: "user", Content: "plan my trip"},
		{Role: "ai", Content: "created a note"},
		{Role: "system", Content: "earlier summary"},
	})
	lines := strings.Split(strings.TrimRight(transcript, "\n"), "\n")
	want := []string{
		"User: plan my trip",
		"Assistant: created a note",
		"System: earlier summary",
	}
	if len(lines) != len(want) {
		t.Fatalf("transcript has %d lines: %q", len(lines), transcript)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
