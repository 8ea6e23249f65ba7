package services

import (
	"context"
	"testing"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tmc/langchaingo/llms"

	"notebridge/internal/models"
)

// stubModel satisfies llms.Model without touching a provider.
type stubModel struct{}

func (stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func (stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

// seededPricing returns a PricingService whose cache is pre-warmed, so
// reads never reach a database.
func seededPricing(rows ...models.Pricing) *PricingService {
	s := NewPricingService(nil)
	all := make(map[string]models.Pricing, len(rows))
	for _, r := range rows {
		all[r.ModelID] = r
	}
	s.cache.Set(pricingCacheKey, all, gocache.DefaultExpiration)
	return s
}

func geminiOnlyProviders(rows ...models.Pricing) *LLMProviderService {
	return &LLMProviderService{gemini: stubModel{}, pricing: seededPricing(rows...)}
}

func TestDefaultModelID(t *testing.T) {
	providers := geminiOnlyProviders(
		models.Pricing{ModelID: "gemini-2.5-flash", PricePerMToken: 255, Category: models.CategoryQuick},
		models.Pricing{ModelID: "gemini-2.5-pro", PricePerMToken: 1020, Category: models.CategoryThink},
		// Cheapest overall, but its provider is not configured.
		models.Pricing{ModelID: "gpt-4o-mini", PricePerMToken: 153, Category: models.CategoryQuick},
	)

	got, err := providers.DefaultModelID(context.Background(), "")
	if err != nil {
		t.Fatalf("DefaultModelID: %v", err)
	}
	if got != "gemini-2.5-flash" {
		t.Errorf("default model = %q, want the cheapest configured one (gemini-2.5-flash)", got)
	}

	got, err = providers.DefaultModelID(context.Background(), ProviderGemini)
	if err != nil || got != "gemini-2.5-flash" {
		t.Errorf("DefaultModelID(gemini) = %q, %v; want gemini-2.5-flash", got, err)
	}

	if _, err := providers.DefaultModelID(context.Background(), ProviderOpenAI); err == nil {
		t.Error("expected an error when the named provider has no usable model")
	}
}

func TestDefaultModelIDStableTieBreak(t *testing.T) {
	providers := geminiOnlyProviders(
		models.Pricing{ModelID: "gemini-b", PricePerMToken: 100, Category: models.CategoryQuick},
		models.Pricing{ModelID: "gemini-a", PricePerMToken: 100, Category: models.CategoryQuick},
	)
	for i := 0; i < 10; i++ {
		got, err := providers.DefaultModelID(context.Background(), "")
		if err != nil {
			t.Fatalf("DefaultModelID: %v", err)
		}
		if got != "gemini-a" {
			t.Fatalf("tie should break on model id, got %q", got)
		}
	}
}

func TestResolveRejectsUnpricedModel(t *testing.T) {
	providers := geminiOnlyProviders(
		models.Pricing{ModelID: "gemini-2.5-flash", PricePerMToken: 255, Category: models.CategoryQuick},
	)

	_, _, err := providers.Resolve(context.Background(), "", "gemini-9-ultra")
	appErr := models.AsAppError(err)
	if appErr == nil || appErr.Code != models.CodeValidation {
		t.Fatalf("want validation error for unpriced model, got %v", err)
	}

	if _, _, err := providers.Resolve(context.Background(), "", ""); err == nil {
		t.Error("empty model must be rejected by Resolve; defaulting is the caller's job")
	}
}
