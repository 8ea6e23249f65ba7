package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"notebridge/internal/models"
	"notebridge/internal/tools"
)

const systemPrompt = `You are the assistant inside a note-taking app. You help the user write, organize and find their notes.

Rules:
- Use the provided tools for every note operation; never claim to have changed a note without calling a tool.
- Notes are identified by title. Read a note with read_file before editing it unless its content is already in context.
- For small changes prefer edit_file_lines with the numbered lines you saw; for rewrites use edit_file.
- When you need current information from the internet, call web_search_with_rag, then query the returned collection with search_knowledge_base.
- Answer in the user's language. Be concise.`

// clientToolAck is what the model sees after requesting a client-side
// mutation. The actual change happens on the device after this response
// ships, so the model must not assume it can read the result back.
const clientToolAck = "Accepted. The change will be applied on the user's device."

// ChatService is the agent orchestrator behind POST /api/chat: one
// provider round trip per iteration, executing server tools inline and
// collecting client tools into commands for the device.
type ChatService struct {
	providers     *LLMProviderService
	billing       *BillingService
	counter       *TokenCounter
	builder       *ContextBuilder
	contextSvc    *ContextService
	registry      *tools.Registry
	maxIterations int
}

func NewChatService(providers *LLMProviderService, billing *BillingService, counter *TokenCounter, builder *ContextBuilder, contextSvc *ContextService, registry *tools.Registry, maxIterations int) *ChatService {
	if maxIterations <= 0 {
		maxIterations = 5
	}
	return &ChatService{
		providers:     providers,
		billing:       billing,
		counter:       counter,
		builder:       builder,
		contextSvc:    contextSvc,
		registry:      registry,
		maxIterations: maxIterations,
	}
}

// Chat runs one agent turn for the user.
func (s *ChatService) Chat(ctx context.Context, userID string, req *models.ChatRequest) (*models.ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, models.NewValidationError("message is required")
	}

	model, pricing, err := s.providers.Resolve(ctx, req.Provider, req.Model)
	if err != nil {
		return nil, err
	}

	var history []models.ChatMessage
	if req.Context != nil {
		history = req.Context.ConversationHistory
	}

	// Pre-flight: estimated input + 20% output must fit the model balance.
	catalogJSON := s.registry.CatalogJSON()
	contextText := s.builder.ContextText(req.Context)
	estimatedInput := s.counter.EstimateChatInput(history, req.Message, systemPrompt+contextText, catalogJSON)
	estimatedOutput := EstimateOutput(estimatedInput)
	if err := s.billing.Validate(ctx, userID, pricing.ModelID, int64(estimatedInput+estimatedOutput)); err != nil {
		return nil, err
	}

	// Expose the request context to server-side tools for the duration of
	// this turn.
	if req.Context != nil {
		s.contextSvc.Set(userID, req.Context)
		defer s.contextSvc.Clear(userID)
	}

	run, err := s.runAgentLoop(ctx, model, userID,
		s.builder.Build(systemPrompt, req.Context, req.Message))
	if err != nil {
		return nil, err
	}

	inputTokens, outputTokens, totalTokens := run.inputTokens, run.outputTokens, run.totalTokens
	if totalTokens == 0 {
		// Provider reported no usage; bill the estimate.
		inputTokens = estimatedInput
		outputTokens = s.counter.Count(run.finalText)
		totalTokens = inputTokens + outputTokens
	}

	if m := GetMetrics(); m != nil {
		m.RecordTokens(pricing.ModelID, int64(inputTokens), int64(outputTokens))
	}

	warning := ""
	if _, err := s.billing.Consume(ctx, userID, pricing.ModelID, int64(inputTokens), int64(outputTokens)); err != nil {
		// The answer is already generated; surface the accounting problem
		// instead of discarding the response.
		log.Printf("⚠️ [CHAT] Consumption failed for %s on %s: %v", userID, pricing.ModelID, err)
		if appErr := models.AsAppError(err); appErr != nil && appErr.Code == models.CodeInsufficientBalance {
			warning = "Token balance exhausted during this request. Allocate more tokens to keep using this model."
		}
	}

	commands := ExtractCommands(run.clientCalls)
	finalHistory := append(append([]models.ChatMessage{}, history...),
		models.ChatMessage{Role: "user", Content: req.Message, Timestamp: time.Now().UnixMilli()},
		models.ChatMessage{Role: "ai", Content: run.finalText, Timestamp: time.Now().UnixMilli()},
	)

	return &models.ChatResponse{
		Message:      run.finalText,
		Commands:     commands,
		Provider:     providerForModel(pricing.ModelID),
		Model:        pricing.ModelID,
		HistoryCount: len(finalHistory),
		TokenUsage:   s.counter.ConversationUsage(finalHistory, inputTokens, outputTokens, totalTokens),
		Warning:      warning,
	}, nil
}

type agentRun struct {
	finalText    string
	clientCalls  []ToolCall
	inputTokens  int
	outputTokens int
	totalTokens  int
}

// runAgentLoop drives the provider until it stops calling tools or the
// iteration cap is hit.
func (s *ChatService) runAgentLoop(ctx context.Context, model llms.Model, clientID string, msgs []llms.MessageContent) (*agentRun, error) {
	run := &agentRun{}
	catalog := s.registry.Catalog()

	for iteration := 0; iteration < s.maxIterations; iteration++ {
		resp, err := model.GenerateContent(ctx, msgs, llms.WithTools(catalog))
		if err != nil {
			return nil, models.NewExternalServiceError("llm provider", err)
		}
		if len(resp.Choices) == 0 {
			return nil, models.NewExternalServiceError("llm provider", fmt.Errorf("empty response"))
		}
		choice := resp.Choices[0]
		s.accumulateUsage(run, choice.GenerationInfo)

		if len(choice.ToolCalls) == 0 {
			run.finalText = choice.Content
			return run, nil
		}

		// Echo the assistant turn, tool calls included, then answer each
		// call so the next iteration sees the results.
		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if choice.Content != "" {
			assistant.Parts = append(assistant.Parts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, tc)
		}
		msgs = append(msgs, assistant)

		for _, tc := range choice.ToolCalls {
			msgs = append(msgs, s.answerToolCall(ctx, clientID, run, tc))
		}
	}

	// Iteration cap hit mid-tool-use; whatever commands were collected
	// still ship.
	log.Printf("⚠️ [CHAT] Agent hit the %d-iteration cap for %s", s.maxIterations, clientID)
	if run.finalText == "" {
		run.finalText = "I had to stop before finishing every step. The changes gathered so far are being applied; ask me to continue if something is missing."
	}
	return run, nil
}

// answerToolCall resolves one tool call into the tool-role message the
// model sees next iteration.
func (s *ChatService) answerToolCall(ctx context.Context, clientID string, run *agentRun, tc llms.ToolCall) llms.MessageContent {
	name := ""
	if tc.FunctionCall != nil {
		name = tc.FunctionCall.Name
	}

	respond := func(content string) llms.MessageContent {
		return llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: tc.ID,
				Name:       name,
				Content:    content,
			}},
		}
	}

	parsed, err := ParseToolCall(tc)
	if err != nil {
		// Feed the parse failure back so the model can correct itself.
		return respond(fmt.Sprintf("Error: %v. Send the arguments again as valid JSON.", err))
	}

	tool, ok := s.registry.Get(parsed.Name)
	if !ok {
		return respond(fmt.Sprintf("Error: unknown tool %q. Available tools: %s.", parsed.Name, strings.Join(s.registry.Names(), ", ")))
	}

	if tool.Side == tools.SideClient {
		run.clientCalls = append(run.clientCalls, *parsed)
		return respond(clientToolAck)
	}

	result, err := tool.Execute(ctx, clientID, parsed.Args)
	if err != nil {
		log.Printf("⚠️ [CHAT] Tool %s failed: %v", parsed.Name, err)
		return respond(fmt.Sprintf("Error: %v", err))
	}
	return respond(result)
}

// accumulateUsage folds provider-reported token counts into the run.
// Providers disagree on key names, so both vocabularies are read and the
// per-iteration counts sum across the run.
func (s *ChatService) accumulateUsage(run *agentRun, info map[string]any) {
	in := intFromInfo(info, "input_tokens", "PromptTokens")
	out := intFromInfo(info, "output_tokens", "CompletionTokens")
	total := intFromInfo(info, "total_tokens", "TotalTokens")
	if total == 0 {
		total = in + out
	}
	run.inputTokens += in
	run.outputTokens += out
	run.totalTokens += total
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			if v > 0 {
				return v
			}
		case int64:
			if v > 0 {
				return int(v)
			}
		case float64:
			if v > 0 {
				return int(v)
			}
		}
	}
	return 0
}
