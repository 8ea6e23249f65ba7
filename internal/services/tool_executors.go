package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"notebridge/internal/tools"
)

// BuildToolRegistry wires the server-side tool executors and returns the
// full catalog. webSearch may be nil; the tool is then omitted.
func BuildToolRegistry(bridge *ClientBridge, contextSvc *ContextService, vectors *VectorStore, webSearch *WebSearchService) (*tools.Registry, error) {
	exec := &toolExecutors{
		bridge:     bridge,
		contextSvc: contextSvc,
		vectors:    vectors,
		webSearch:  webSearch,
	}

	funcs := tools.ServerToolFuncs{
		ReadFile:            exec.readFile,
		SearchFiles:         exec.searchFiles,
		SearchKnowledgeBase: exec.searchKnowledgeBase,
	}
	if webSearch != nil {
		funcs.WebSearchWithRAG = exec.webSearchWithRAG
	}
	return tools.BuildRegistry(funcs)
}

type toolExecutors struct {
	bridge     *ClientBridge
	contextSvc *ContextService
	vectors    *VectorStore
	webSearch  *WebSearchService
}

// readFile returns a note's content with line numbers. The request
// context is checked first; only a miss goes over the websocket.
func (e *toolExecutors) readFile(ctx context.Context, clientID string, args map[string]interface{}) (string, error) {
	title, _ := args["title"].(string)
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("title is required")
	}

	if chatCtx := e.contextSvc.Get(clientID); chatCtx != nil &&
		chatCtx.FilePath == title && chatCtx.FileContent != "" {
		return numberLines(chatCtx.FileContent), nil
	}

	content, err := e.bridge.RequestFileContent(ctx, clientID, title, DefaultBridgeTimeout)
	if err != nil {
		if errors.Is(err, ErrClientNotConnected) {
			return "", fmt.Errorf("the device is not connected; cannot read %q right now", title)
		}
		return "", err
	}
	return numberLines(content), nil
}

// searchFiles runs a client-side note search over the websocket.
func (e *toolExecutors) searchFiles(ctx context.Context, clientID string, args map[string]interface{}) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required")
	}
	searchType, _ := args["search_type"].(string)
	if searchType == "" {
		searchType = "both"
	}

	results, err := e.bridge.RequestSearchResults(ctx, clientID, query, searchType, DefaultBridgeTimeout)
	if err != nil {
		if errors.Is(err, ErrClientNotConnected) {
			return e.searchFilesFromContext(clientID, query)
		}
		return "", err
	}
	if len(results) == 0 {
		return "No notes matched the query.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d matching notes:\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "- %s", r.Title)
		if r.Line > 0 {
			fmt.Fprintf(&b, " (line %d)", r.Line)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&b, ": %s", r.Snippet)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// searchFilesFromContext is the degraded path when no websocket is up:
// title matching over the file lists the request already carried.
func (e *toolExecutors) searchFilesFromContext(clientID, query string) (string, error) {
	chatCtx := e.contextSvc.Get(clientID)
	if chatCtx == nil {
		return "", fmt.Errorf("the device is not connected; cannot search notes right now")
	}

	files := chatCtx.AllFiles
	if len(files) == 0 {
		files = chatCtx.FileList
	}
	needle := strings.ToLower(query)
	var matches []string
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.Title), needle) ||
			strings.Contains(strings.ToLower(f.Tags), needle) {
			matches = append(matches, f.Title)
		}
	}
	if len(matches) == 0 {
		return "No notes matched the query (title search only; the device is offline).", nil
	}
	return fmt.Sprintf("Matching note titles (title search only): %s", strings.Join(matches, ", ")), nil
}

// searchKnowledgeBase runs a similarity query over a collection.
func (e *toolExecutors) searchKnowledgeBase(ctx context.Context, clientID string, args map[string]interface{}) (string, error) {
	collectionName, _ := args["collection_name"].(string)
	query, _ := args["query"].(string)
	if collectionName == "" || query == "" {
		return "", fmt.Errorf("collection_name and query are required")
	}
	topK := 5
	if k, ok := args["top_k"].(float64); ok && k > 0 {
		topK = int(k)
	}

	hits, err := e.vectors.Search(ctx, collectionName, query, topK, &clientID)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return fmt.Sprintf("No matches in collection %q.", collectionName), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d matches from %q:\n", len(hits), collectionName)
	for i, hit := range hits {
		source := ""
		if s, ok := hit.Metadata["source"].(string); ok && s != "" {
			source = fmt.Sprintf(" (source: %s)", s)
		}
		fmt.Fprintf(&b, "[%d] similarity %.2f%s\n%s\n\n", i+1, hit.Similarity, source, hit.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// webSearchWithRAG indexes web results into a temp collection.
func (e *toolExecutors) webSearchWithRAG(ctx context.Context, clientID string, args map[string]interface{}) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required")
	}

	summary, err := e.webSearch.SearchAndIndex(ctx, clientID, query)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
