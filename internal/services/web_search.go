package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"notebridge/internal/models"
)

const (
	webSearchResultCount   = 5
	webCollectionPrefix    = "web"
	webSearchOverallBudget = 45 * time.Second
)

// WebSearchService powers the web_search_with_rag tool: Google Custom
// Search picks the pages, the fetcher extracts them, and the chunks land
// in an expiring temp collection the agent then queries like any other
// knowledge base.
type WebSearchService struct {
	cse      *customsearch.Service
	cseID    string
	fetcher  *PageFetcher
	vectors  *VectorStore
	splitter *DocumentService
}

func NewWebSearchService(ctx context.Context, apiKey, cseID string, fetcher *PageFetcher, vectors *VectorStore, documents *DocumentService) (*WebSearchService, error) {
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to init custom search client: %w", err)
	}
	log.Printf("✅ Web search ready (CSE %s)", cseID)
	return &WebSearchService{
		cse:      svc,
		cseID:    cseID,
		fetcher:  fetcher,
		vectors:  vectors,
		splitter: documents,
	}, nil
}

// webCollectionParams builds the temp-collection insert. Temp rows are
// readable by anyone who knows the name, but they still carry the creating
// user when one is known.
func webCollectionParams(userID, collectionName string, texts []string, metadatas []map[string]interface{}) AddDocumentsParams {
	p := AddDocumentsParams{
		CollectionName: collectionName,
		CollectionType: models.CollectionTemp,
		Texts:          texts,
		Metadatas:      metadatas,
		TTL:            DefaultTempCollectionTTL,
	}
	if userID != "" {
		p.UserID = &userID
	}
	return p
}

// SearchResultSummary is what the agent gets back from the tool.
type SearchResultSummary struct {
	CollectionName string   `json:"collection_name"`
	PagesIndexed   int      `json:"pages_indexed"`
	ChunkCount     int      `json:"chunk_count"`
	Sources        []string `json:"sources"`
	Instruction    string   `json:"instruction"`
}

// SearchAndIndex runs one query, indexes the top results into a fresh temp
// collection, and tells the agent how to read it. userID is the requester;
// it is recorded on the rows so the collection's origin stays attributable.
func (s *WebSearchService) SearchAndIndex(ctx context.Context, userID, query string) (*SearchResultSummary, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("query is required")
	}

	ctx, cancel := context.WithTimeout(ctx, webSearchOverallBudget)
	defer cancel()

	resp, err := s.cse.Cse.List().Q(query).Cx(s.cseID).Num(webSearchResultCount).Context(ctx).Do()
	if err != nil {
		return nil, models.NewExternalServiceError("web search", err)
	}
	if len(resp.Items) == 0 {
		return nil, models.NewNotFoundError("no search results for query")
	}

	type page struct {
		url  string
		text string
	}
	var (
		mu    sync.Mutex
		pages []page
		wg    sync.WaitGroup
	)
	for _, item := range resp.Items {
		wg.Add(1)
		go func(link string) {
			defer wg.Done()
			text, err := s.fetcher.FetchText(ctx, link)
			if err != nil {
				log.Printf("⚠️ [SEARCH] Skipping %s: %v", link, err)
				return
			}
			mu.Lock()
			pages = append(pages, page{url: link, text: text})
			mu.Unlock()
		}(item.Link)
	}
	wg.Wait()

	if len(pages) == 0 {
		return nil, models.NewExternalServiceError("web search", fmt.Errorf("no pages could be fetched"))
	}

	var (
		texts     []string
		metadatas []map[string]interface{}
		sources   []string
	)
	for _, p := range pages {
		chunks, err := s.splitter.Chunk(p.text)
		if err != nil {
			continue
		}
		for i, chunk := range chunks {
			texts = append(texts, chunk)
			metadatas = append(metadatas, map[string]interface{}{
				"source":      p.url,
				"chunk_index": i,
				"query":       query,
			})
		}
		sources = append(sources, p.url)
	}
	if len(texts) == 0 {
		return nil, models.NewExternalServiceError("web search", fmt.Errorf("no indexable text in fetched pages"))
	}

	collectionName := TempCollectionName(webCollectionPrefix, time.Now())
	count, err := s.vectors.AddDocuments(ctx, webCollectionParams(userID, collectionName, texts, metadatas))
	if err != nil {
		return nil, err
	}

	log.Printf("🔍 [SEARCH] Indexed %d chunks from %d pages into %s", count, len(pages), collectionName)
	return &SearchResultSummary{
		CollectionName: collectionName,
		PagesIndexed:   len(pages),
		ChunkCount:     count,
		Sources:        sources,
		Instruction: fmt.Sprintf(
			"Web results for %q are indexed in collection %q. Call search_knowledge_base with that collection_name and a focused query to read them.",
			query, collectionName),
	}, nil
}
