package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// ToolSide says where a tool's effect happens. Client tools become
// commands applied by the device; server tools run inside the request and
// feed their result back into the agent loop.
type ToolSide string

const (
	SideClient ToolSide = "client"
	SideServer ToolSide = "server"
)

// ExecuteFunc runs a server-side tool. clientID identifies the websocket
// peer for tools that need a round trip to the device.
type ExecuteFunc func(ctx context.Context, clientID string, args map[string]interface{}) (string, error)

// Tool is one entry of the agent's tool catalog.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema
	Side        ToolSide
	Execute     ExecuteFunc // server tools only
}

// Registry holds the tool catalog for one server instance.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

func (r *Registry) Register(tool *Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Side == SideServer && tool.Execute == nil {
		return fmt.Errorf("server tool %s must have an Execute function", tool.Name)
	}
	if tool.Side != SideServer && tool.Side != SideClient {
		return fmt.Errorf("tool %s has unknown side %q", tool.Name, tool.Side)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s is already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog exports the registry in the provider's tool format, in name
// order so the prompt is stable across requests.
func (r *Registry) Catalog() []llms.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	catalog := make([]llms.Tool, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		catalog = append(catalog, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return catalog
}

// CatalogJSON serializes the catalog for token estimation.
func (r *Registry) CatalogJSON() string {
	data, err := json.Marshal(r.Catalog())
	if err != nil {
		return ""
	}
	return string(data)
}
