package services

import (
	"context"
	"fmt"
	"log"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"

	"notebridge/internal/models"
)

// EmbeddingDimensions is fixed by the vector_documents schema; every
// provider model wired here must produce vectors of this size.
const EmbeddingDimensions = 768

const defaultEmbeddingModel = "text-embedding-004"

// Embedder turns text into vectors. The vector store depends on this
// interface; tests substitute a deterministic fake.
type Embedder interface {
	// EmbedDocuments embeds a batch in one provider call.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// GoogleEmbedder wraps the langchaingo googleai client with
// text-embedding-004 (768 dimensions, cosine).
type GoogleEmbedder struct {
	embedder *embeddings.EmbedderImpl
}

func NewGoogleEmbedder(ctx context.Context, apiKey string) (*GoogleEmbedder, error) {
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultEmbeddingModel(defaultEmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init googleai embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to init embedder: %w", err)
	}
	log.Printf("✅ Embedder initialized (%s, %d dims)", defaultEmbeddingModel, EmbeddingDimensions)
	return &GoogleEmbedder{embedder: embedder}, nil
}

func (e *GoogleEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, models.NewExternalServiceError("embedding provider", err)
	}
	return vectors, nil
}

func (e *GoogleEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, models.NewExternalServiceError("embedding provider", err)
	}
	return vector, nil
}
