package services

import (
	"log"

	"github.com/pkoukk/tiktoken-go"

	"notebridge/internal/models"
)

// Conversation window accounting. The window is advisory: the client is
// told when it should summarize, nothing is enforced server-side.
const (
	MaxConversationTokens = 4000
	SummaryThresholdRatio = 0.8
)

// messageOverheadTokens covers role markers and separators per message.
const messageOverheadTokens = 4

// TokenCounter estimates token counts for pre-flight billing checks and
// conversation window stats. It prefers a real tokenizer and falls back to
// the ~4 chars/token heuristic when the encoding is unavailable (tiktoken
// downloads its vocabulary on first use).
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Printf("⚠️ [TOKENS] tiktoken unavailable, using len/4 heuristic: %v", err)
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// Count returns the token count of a text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// CountMessages estimates the total token count of a conversation history,
// with per-message role overhead.
func (c *TokenCounter) CountMessages(messages []models.ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += messageOverheadTokens + c.Count(msg.Content)
	}
	return total
}

// EstimateChatInput is the pre-flight input estimate for one chat turn:
// history + new message + system prompt + the serialized tool catalog the
// provider will see.
func (c *TokenCounter) EstimateChatInput(history []models.ChatMessage, message, systemPrompt, toolCatalogJSON string) int {
	total := c.CountMessages(history)
	total += messageOverheadTokens + c.Count(message)
	total += c.Count(systemPrompt)
	total += c.Count(toolCatalogJSON)
	return total
}

// EstimateOutput is the heuristic output estimate: 20% of the input.
func EstimateOutput(inputTokens int) int {
	return inputTokens / 5
}

// ConversationUsage packages window stats plus the provider-metered cost
// of the request that just finished.
func (c *TokenCounter) ConversationUsage(history []models.ChatMessage, inputTokens, outputTokens, totalTokens int) *models.TokenUsage {
	current := c.CountMessages(history)
	ratio := float64(current) / float64(MaxConversationTokens)
	return &models.TokenUsage{
		CurrentTokens: current,
		MaxTokens:     MaxConversationTokens,
		UsageRatio:    ratio,
		NeedsSummary:  ratio >= SummaryThresholdRatio,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		TotalTokens:   totalTokens,
	}
}
