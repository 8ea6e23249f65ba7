package tools

import (
	"context"
	"strings"
	"testing"
)

func noopExecute(ctx context.Context, clientID string, args map[string]interface{}) (string, error) {
	return "ok", nil
}

func testFuncs() ServerToolFuncs {
	return ServerToolFuncs{
		ReadFile:            noopExecute,
		SearchFiles:         noopExecute,
		WebSearchWithRAG:    noopExecute,
		SearchKnowledgeBase: noopExecute,
	}
}

func TestBuildRegistry(t *testing.T) {
	registry, err := BuildRegistry(testFuncs())
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	want := []string{
		NameCreateFile, NameDeleteFile, NameEditFile, NameEditFileLines,
		NameReadFile, NameRenameFile, NameSearchFiles, NameSearchKnowledgeBase,
		NameWebSearchWithRAG,
	}
	got := registry.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %d tools", got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBuildRegistryWithoutWebSearch(t *testing.T) {
	funcs := testFuncs()
	funcs.WebSearchWithRAG = nil
	registry, err := BuildRegistry(funcs)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if _, ok := registry.Get(NameWebSearchWithRAG); ok {
		t.Error("web_search_with_rag should be absent when not configured")
	}
	if _, ok := registry.Get(NameSearchKnowledgeBase); !ok {
		t.Error("search_knowledge_base should still be present")
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Tool{Name: "", Side: SideClient}); err == nil {
		t.Error("empty name should be rejected")
	}
	if err := r.Register(&Tool{Name: "x", Side: SideServer}); err == nil {
		t.Error("server tool without Execute should be rejected")
	}
	if err := r.Register(&Tool{Name: "x", Side: "weird"}); err == nil {
		t.Error("unknown side should be rejected")
	}
	if err := r.Register(&Tool{Name: "x", Side: SideClient}); err != nil {
		t.Fatalf("valid client tool rejected: %v", err)
	}
	if err := r.Register(&Tool{Name: "x", Side: SideClient}); err == nil {
		t.Error("duplicate name should be rejected")
	}
}

func TestCatalogShape(t *testing.T) {
	registry, err := BuildRegistry(testFuncs())
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	catalog := registry.Catalog()
	if len(catalog) != len(registry.Names()) {
		t.Fatalf("catalog has %d entries, want %d", len(catalog), len(registry.Names()))
	}
	for _, entry := range catalog {
		if entry.Type != "function" {
			t.Errorf("tool %v type = %q, want function", entry.Function, entry.Type)
		}
		if entry.Function == nil || entry.Function.Name == "" {
			t.Error("catalog entry missing function definition")
		}
	}

	// Stable ordering keeps prompts cacheable.
	again := registry.Catalog()
	for i := range catalog {
		if catalog[i].Function.Name != again[i].Function.Name {
			t.Fatal("catalog ordering is not stable")
		}
	}

	jsonCatalog := registry.CatalogJSON()
	if !strings.Contains(jsonCatalog, NameCreateFile) {
		t.Error("CatalogJSON missing tool names")
	}
}
