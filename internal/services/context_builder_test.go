package services

import (
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"notebridge/internal/models"
)

func TestBuildOrdersMessages(t *testing.T) {
	b := NewContextBuilder(heuristicCounter())
	chatCtx := &models.ChatContext{
		CurrentScreen: "EditScreen",
		FilePath:      "groceries",
		FileContent:   "milk\neggs",
		ConversationHistory: []models.ChatMessage{
			{Role: "user", Content: "hi"},
			{Role: "ai", Content: "hello"},
		},
	}

	msgs := b.Build("You are a note assistant.", chatCtx, "add bread")
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5 (system, 2 history, context, user)", len(msgs))
	}
	wantRoles := []llms.ChatMessageType{
		llms.ChatMessageTypeSystem,
		llms.ChatMessageTypeHuman,
		llms.ChatMessageTypeAI,
		llms.ChatMessageTypeHuman, // synthetic context
		llms.ChatMessageTypeHuman, // new message
	}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Errorf("message %d role = %s, want %s", i, msgs[i].Role, want)
		}
	}

	contextText := textOf(t, msgs[3])
	if !strings.Contains(contextText, "groceries") {
		t.Errorf("context message missing file title: %q", contextText)
	}
	if !strings.Contains(contextText, "1| milk") {
		t.Errorf("context message missing numbered content: %q", contextText)
	}
	if got := textOf(t, msgs[4]); got != "add bread" {
		t.Errorf("last message = %q, want the new user message", got)
	}
}

func TestBuildSuppressesFileContentOnOptOut(t *testing.T) {
	b := NewContextBuilder(heuristicCounter())
	optOut := false
	chatCtx := &models.ChatContext{
		CurrentScreen:        "EditScreen",
		FilePath:             "secret",
		FileContent:          "do not send this",
		SendFileContextToLLM: &optOut,
	}

	msgs := b.Build("", chatCtx, "summarize my note")
	for _, m := range msgs {
		if strings.Contains(textOf(t, m), "do not send this") {
			t.Fatal("file content leaked despite sendFileContextToLLM=false")
		}
	}
	// The screen itself is still described.
	joined := ""
	for _, m := range msgs {
		joined += textOf(t, m)
	}
	if !strings.Contains(joined, "secret") {
		t.Error("file title should still be visible when content is suppressed")
	}
}

func TestBuildFilelistScreen(t *testing.T) {
	b := NewContextBuilder(heuristicCounter())
	chatCtx := &models.ChatContext{
		CurrentScreen: "FilelistScreen",
		FileList: []models.FileInfo{
			{Title: "groceries", Category: "home", Tags: "shopping"},
			{Title: "old plan", IsArchived: true},
		},
	}

	msgs := b.Build("", chatCtx, "which notes do I have?")
	contextText := textOf(t, msgs[0])
	for _, want := range []string{"groceries", "category: home", "tags: shopping", "old plan", "(archived)"} {
		if !strings.Contains(contextText, want) {
			t.Errorf("context message missing %q: %q", want, contextText)
		}
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   string
		want llms.ChatMessageType
	}{
		{"user", llms.ChatMessageTypeHuman},
		{"human", llms.ChatMessageTypeHuman},
		{"ai", llms.ChatMessageTypeAI},
		{"assistant", llms.ChatMessageTypeAI},
		{"Model", llms.ChatMessageTypeAI},
		{"system", llms.ChatMessageTypeSystem},
		{"weird", llms.ChatMessageTypeHuman},
	}
	for _, tt := range tests {
		if got := normalizeRole(tt.in); got != tt.want {
			t.Errorf("normalizeRole(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestContextServiceLifecycle(t *testing.T) {
	s := NewContextService()
	if got := s.Get("client-1"); got != nil {
		t.Fatal("expected nil before Set")
	}
	ctx := &models.ChatContext{CurrentScreen: "EditScreen"}
	s.Set("client-1", ctx)
	if got := s.Get("client-1"); got != ctx {
		t.Fatal("Get should return the stored context")
	}
	s.Clear("client-1")
	if got := s.Get("client-1"); got != nil {
		t.Fatal("expected nil after Clear")
	}
}

func textOf(t *testing.T, m llms.MessageContent) string {
	t.Helper()
	var b strings.Builder
	for _, part := range m.Parts {
		if tc, ok := part.(llms.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}
