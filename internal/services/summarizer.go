package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"notebridge/internal/models"
)

const (
	defaultSummaryMaxTokens      = 4000
	defaultPreserveRecent        = 10
	summaryOutputEstimateRatio   = 4 // output estimate = input / 4
	summaryCompressionWarnCutoff = 0.95
)

const summarySystemPrompt = `You compress chat history. Produce a dense summary of the conversation below that preserves: decisions made, note titles mentioned, facts the user stated about themselves, and any unresolved requests. Write plain prose, no headers, no preamble.`

// summaryMaxTokens caps the summary length at the requested budget,
// defaulting when the request carries none.
func summaryMaxTokens(requested int) int {
	if requested <= 0 {
		return defaultSummaryMaxTokens
	}
	return requested
}

// splitHistory separates the messages to compress from the recent tail
// that stays verbatim.
func splitHistory(history []models.ChatMessage, preserveRecent int) (old, recent []models.ChatMessage) {
	if preserveRecent <= 0 {
		preserveRecent = defaultPreserveRecent
	}
	if len(history) <= preserveRecent {
		return nil, history
	}
	return history[:len(history)-preserveRecent], history[len(history)-preserveRecent:]
}

// formatForSummary renders old messages as a transcript for the summary
// prompt.
func formatForSummary(messages []models.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		role := "User"
		switch strings.ToLower(m.Role) {
		case "ai", "assistant", "model":
			role = "Assistant"
		case "system":
			role = "System"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	return b.String()
}

// Summarize compresses conversation history: everything but the recent
// tail is replaced by one system-role summary message. Billed like any
// other model call.
func (s *ChatService) Summarize(ctx context.Context, userID string, req *models.SummarizeRequest) (*models.SummarizeResponse, error) {
	if len(req.ConversationHistory) == 0 {
		return nil, models.NewValidationError("conversationHistory is required")
	}

	// model is optional here; an empty one falls back to the cheapest
	// configured model.
	modelID := req.Model
	if modelID == "" {
		var err error
		modelID, err = s.providers.DefaultModelID(ctx, req.Provider)
		if err != nil {
			return nil, err
		}
	}
	model, pricing, err := s.providers.Resolve(ctx, req.Provider, modelID)
	if err != nil {
		return nil, err
	}

	old, recent := splitHistory(req.ConversationHistory, req.PreserveRecent)
	originalTokens := s.counter.CountMessages(req.ConversationHistory)

	// Nothing to compress: short histories come back unchanged.
	if len(old) == 0 {
		return &models.SummarizeResponse{
			Summary:          models.ChatMessage{Role: "system", Content: "", Timestamp: time.Now().UnixMilli()},
			RecentMessages:   recent,
			CompressionRatio: 1.0,
			OriginalTokens:   originalTokens,
			CompressedTokens: originalTokens,
			Model:            pricing.ModelID,
		}, nil
	}

	transcript := formatForSummary(old)
	maxTokens := summaryMaxTokens(req.MaxTokens)
	estimatedInput := s.counter.Count(summarySystemPrompt) + s.counter.Count(transcript)
	estimatedOutput := estimatedInput / summaryOutputEstimateRatio
	if estimatedOutput > maxTokens {
		estimatedOutput = maxTokens
	}
	if err := s.billing.Validate(ctx, userID, pricing.ModelID, int64(estimatedInput+estimatedOutput)); err != nil {
		return nil, err
	}

	resp, err := model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summarySystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, transcript),
	}, llms.WithMaxTokens(maxTokens))
	if err != nil {
		return nil, models.NewExternalServiceError("llm provider", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, models.NewExternalServiceError("llm provider", fmt.Errorf("empty summary"))
	}
	summaryText := resp.Choices[0].Content

	inputTokens := intFromInfo(resp.Choices[0].GenerationInfo, "input_tokens", "PromptTokens")
	outputTokens := intFromInfo(resp.Choices[0].GenerationInfo, "output_tokens", "CompletionTokens")
	if inputTokens == 0 && outputTokens == 0 {
		inputTokens = estimatedInput
		outputTokens = s.counter.Count(summaryText)
	}
	if m := GetMetrics(); m != nil {
		m.RecordTokens(pricing.ModelID, int64(inputTokens), int64(outputTokens))
	}
	if _, err := s.billing.Consume(ctx, userID, pricing.ModelID, int64(inputTokens), int64(outputTokens)); err != nil {
		log.Printf("⚠️ [SUMMARY] Consumption failed for %s on %s: %v", userID, pricing.ModelID, err)
	}

	summary := models.ChatMessage{Role: "system", Content: summaryText, Timestamp: time.Now().UnixMilli()}
	compressed := append([]models.ChatMessage{summary}, recent...)
	compressedTokens := s.counter.CountMessages(compressed)

	ratio := 1.0
	if originalTokens > 0 {
		ratio = float64(compressedTokens) / float64(originalTokens)
	}
	warning := ""
	if ratio >= summaryCompressionWarnCutoff {
		warning = "Summarization barely reduced the conversation size. Consider starting a new conversation."
	}

	return &models.SummarizeResponse{
		Summary:          summary,
		RecentMessages:   recent,
		CompressionRatio: ratio,
		OriginalTokens:   originalTokens,
		CompressedTokens: compressedTokens,
		TokenUsage:       s.counter.ConversationUsage(compressed, inputTokens, outputTokens, inputTokens+outputTokens),
		Model:            pricing.ModelID,
		Warning:          warning,
	}, nil
}
