package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"notebridge/internal/models"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// LLMProviderService resolves (provider, model) pairs from chat requests
// into configured langchaingo clients. Only models present in the pricing
// table are selectable, so an unpriced model can never reach the billing
// path.
type LLMProviderService struct {
	gemini  llms.Model
	openai  llms.Model
	pricing *PricingService
}

func NewLLMProviderService(ctx context.Context, geminiAPIKey, openaiAPIKey, openaiBaseURL string, pricing *PricingService) (*LLMProviderService, error) {
	s := &LLMProviderService{pricing: pricing}

	if geminiAPIKey != "" {
		client, err := googleai.New(ctx, googleai.WithAPIKey(geminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to init gemini client: %w", err)
		}
		s.gemini = client
		log.Printf("✅ LLM provider ready: %s", ProviderGemini)
	}

	if openaiAPIKey != "" {
		opts := []openai.Option{openai.WithToken(openaiAPIKey)}
		if openaiBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(openaiBaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to init openai client: %w", err)
		}
		s.openai = client
		log.Printf("✅ LLM provider ready: %s", ProviderOpenAI)
	}

	if s.gemini == nil && s.openai == nil {
		return nil, fmt.Errorf("no LLM provider configured")
	}
	return s, nil
}

// Resolve returns the client for a request, validating that the model is
// priced and that the named provider actually serves it.
func (s *LLMProviderService) Resolve(ctx context.Context, provider, modelID string) (llms.Model, *models.Pricing, error) {
	if modelID == "" {
		return nil, nil, models.NewValidationError("model is required")
	}

	pricing, err := s.pricing.GetModel(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	if pricing == nil {
		return nil, nil, models.NewValidationError(fmt.Sprintf("unknown model: %s", modelID))
	}

	resolved := providerForModel(modelID)
	if provider != "" && provider != resolved {
		return nil, nil, models.NewValidationError(fmt.Sprintf("model %s is not served by provider %s", modelID, provider))
	}

	switch resolved {
	case ProviderOpenAI:
		if s.openai == nil {
			return nil, nil, models.NewValidationError("openai provider is not configured")
		}
		return s.openai, pricing, nil
	default:
		if s.gemini == nil {
			return nil, nil, models.NewValidationError("gemini provider is not configured")
		}
		return s.gemini, pricing, nil
	}
}

// DefaultModelID picks the model for requests that name none: the
// cheapest priced model served by a configured provider, restricted to the
// named provider when one is given. Ties break on model id so the choice
// is stable across calls.
func (s *LLMProviderService) DefaultModelID(ctx context.Context, provider string) (string, error) {
	priced, err := s.pricing.GetAll(ctx)
	if err != nil {
		return "", err
	}

	best := ""
	var bestPrice int64
	for id, p := range priced {
		name := providerForModel(id)
		if provider != "" && name != provider {
			continue
		}
		if !s.available(name) {
			continue
		}
		if best == "" || p.PricePerMToken < bestPrice ||
			(p.PricePerMToken == bestPrice && id < best) {
			best, bestPrice = id, p.PricePerMToken
		}
	}
	if best == "" {
		return "", models.NewValidationError("no model available for this provider; name one explicitly")
	}
	return best, nil
}

// Providers lists every configured provider with its priced models, for
// client model pickers.
func (s *LLMProviderService) Providers(ctx context.Context) ([]models.ProviderInfo, error) {
	priced, err := s.pricing.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	byProvider := map[string][]models.ModelInfo{}
	for _, p := range priced {
		info := models.ModelInfo{
			ID:             p.ModelID,
			Category:       p.Category,
			PricePerMToken: p.PricePerMToken,
		}
		if p.DisplayName != nil {
			info.DisplayName = *p.DisplayName
		}
		name := providerForModel(p.ModelID)
		byProvider[name] = append(byProvider[name], info)
	}

	out := []models.ProviderInfo{}
	for _, name := range []string{ProviderGemini, ProviderOpenAI} {
		ms := byProvider[name]
		sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
		out = append(out, models.ProviderInfo{
			Name:      name,
			Available: s.available(name),
			Models:    ms,
		})
	}
	return out, nil
}

func (s *LLMProviderService) available(provider string) bool {
	switch provider {
	case ProviderGemini:
		return s.gemini != nil
	case ProviderOpenAI:
		return s.openai != nil
	}
	return false
}

// providerForModel maps a model id to its provider by prefix. The pricing
// table carries no provider column, so the id is the source of truth.
func providerForModel(modelID string) string {
	id := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(id, "gpt-"), strings.HasPrefix(id, "o1"), strings.HasPrefix(id, "o3"), strings.HasPrefix(id, "o4"):
		return ProviderOpenAI
	default:
		return ProviderGemini
	}
}
