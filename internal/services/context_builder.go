package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"notebridge/internal/models"
)

// ContextService keeps the client context of in-flight chat requests so
// server-side tools (read_file, search_files fallbacks) can see what the
// client attached without another websocket round trip. Entries live for
// the duration of one request.
type ContextService struct {
	mu       sync.RWMutex
	contexts map[string]*models.ChatContext // keyed by client id
}

func NewContextService() *ContextService {
	return &ContextService{contexts: make(map[string]*models.ChatContext)}
}

func (s *ContextService) Set(clientID string, ctx *models.ChatContext) {
	if ctx == nil {
		return
	}
	s.mu.Lock()
	s.contexts[clientID] = ctx
	s.mu.Unlock()
}

func (s *ContextService) Get(clientID string) *models.ChatContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contexts[clientID]
}

func (s *ContextService) Clear(clientID string) {
	s.mu.Lock()
	delete(s.contexts, clientID)
	s.mu.Unlock()
}

// ContextBuilder assembles the provider message list for one chat turn:
// system prompt, normalized history, an optional synthetic context message
// describing the client's screen, then the new user message.
type ContextBuilder struct {
	counter *TokenCounter
}

func NewContextBuilder(counter *TokenCounter) *ContextBuilder {
	return &ContextBuilder{counter: counter}
}

// Build returns the message list for the provider call.
func (b *ContextBuilder) Build(systemPrompt string, chatCtx *models.ChatContext, message string) []llms.MessageContent {
	msgs := []llms.MessageContent{}
	if systemPrompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}

	if chatCtx != nil {
		for _, m := range chatCtx.ConversationHistory {
			role := normalizeRole(m.Role)
			if m.Content == "" {
				continue
			}
			msgs = append(msgs, llms.TextParts(role, m.Content))
		}
		if contextMsg := buildContextMessage(chatCtx); contextMsg != "" {
			msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, contextMsg))
		}
	}

	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, message))
	return msgs
}

// normalizeRole maps the client role vocabulary onto provider roles.
// Unknown roles degrade to human rather than failing the request.
func normalizeRole(role string) llms.ChatMessageType {
	switch strings.ToLower(role) {
	case "ai", "assistant", "model":
		return llms.ChatMessageTypeAI
	case "system":
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}

// buildContextMessage renders the client's screen state as one human-role
// message. Returns "" when there is nothing to reveal or the client opted
// out of sending file content.
func buildContextMessage(chatCtx *models.ChatContext) string {
	sendContent := chatCtx.SendFileContextToLLM == nil || *chatCtx.SendFileContextToLLM

	var b strings.Builder
	switch chatCtx.CurrentScreen {
	case "EditScreen":
		b.WriteString("[Context] The user is editing a note")
		if chatCtx.FilePath != "" {
			fmt.Fprintf(&b, " titled %q", chatCtx.FilePath)
		}
		b.WriteString(".\n")
		if sendContent && chatCtx.FileContent != "" {
			b.WriteString("Current note content:\n")
			b.WriteString(numberLines(chatCtx.FileContent))
			b.WriteString("\n")
		}
	case "FilelistScreen":
		b.WriteString("[Context] The user is viewing their note list.\n")
		if len(chatCtx.FileList) > 0 {
			b.WriteString("Visible notes:\n")
			writeFileList(&b, chatCtx.FileList)
		}
	default:
		if chatCtx.CurrentScreen != "" {
			fmt.Fprintf(&b, "[Context] The user is on screen %q.\n", chatCtx.CurrentScreen)
		}
	}

	if sendContent && chatCtx.AttachedFileContent != "" {
		b.WriteString("Attached file content:\n")
		b.WriteString(chatCtx.AttachedFileContent)
		b.WriteString("\n")
	}
	if len(chatCtx.AllFiles) > 0 {
		b.WriteString("All notes:\n")
		writeFileList(&b, chatCtx.AllFiles)
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeFileList(b *strings.Builder, files []models.FileInfo) {
	for _, f := range files {
		fmt.Fprintf(b, "- %s", f.Title)
		if f.Category != "" {
			fmt.Fprintf(b, " (category: %s)", f.Category)
		}
		if f.Tags != "" {
			fmt.Fprintf(b, " [tags: %s]", f.Tags)
		}
		if f.IsArchived {
			b.WriteString(" (archived)")
		}
		b.WriteString("\n")
	}
}

// numberLines prefixes 1-based line numbers so edit_file_lines targets are
// unambiguous.
func numberLines(content string) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%4d| %s\n", i+1, line)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ContextText flattens the synthetic context message for token estimation.
func (b *ContextBuilder) ContextText(chatCtx *models.ChatContext) string {
	if chatCtx == nil {
		return ""
	}
	return buildContextMessage(chatCtx)
}
