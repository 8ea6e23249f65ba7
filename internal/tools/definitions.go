package tools

// Tool names. The client-side ones double as command actions.
const (
	NameCreateFile    = "create_file"
	NameEditFile      = "edit_file"
	NameEditFileLines = "edit_file_lines"
	NameDeleteFile    = "delete_file"
	NameRenameFile    = "rename_file"

	NameReadFile            = "read_file"
	NameSearchFiles         = "search_files"
	NameWebSearchWithRAG    = "web_search_with_rag"
	NameSearchKnowledgeBase = "search_knowledge_base"
)

func stringParam(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func integerParam(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ClientTools returns the file-mutation tools. They have no Execute: the
// orchestrator acknowledges them to the model and ships them to the device
// as commands.
func ClientTools() []*Tool {
	return []*Tool{
		{
			Name:        NameCreateFile,
			Description: "Create a new note. Use this when the user asks to make, write or start a new note.",
			Side:        SideClient,
			Parameters: objectSchema(map[string]interface{}{
				"title":    stringParam("Title of the new note"),
				"content":  stringParam("Full markdown content of the note"),
				"category": stringParam("Optional category for the note"),
				"tags":     stringParam("Optional comma-separated tags"),
			}, "title"),
		},
		{
			Name:        NameEditFile,
			Description: "Replace the entire content of an existing note. Prefer edit_file_lines for small changes.",
			Side:        SideClient,
			Parameters: objectSchema(map[string]interface{}{
				"title":   stringParam("Title of the note to edit"),
				"content": stringParam("New full content of the note"),
			}, "title", "content"),
		},
		{
			Name:        NameEditFileLines,
			Description: "Replace a line range of a note. Lines are 1-based and inclusive; use the numbered content from context or read_file to pick the range.",
			Side:        SideClient,
			Parameters: objectSchema(map[string]interface{}{
				"title":      stringParam("Title of the note to edit"),
				"content":    stringParam("Replacement text for the selected lines"),
				"start_line": integerParam("First line to replace (1-based)"),
				"end_line":   integerParam("Last line to replace (inclusive)"),
			}, "title", "content", "start_line", "end_line"),
		},
		{
			Name:        NameDeleteFile,
			Description: "Delete a note. Only use this when the user explicitly asks for deletion.",
			Side:        SideClient,
			Parameters: objectSchema(map[string]interface{}{
				"title": stringParam("Title of the note to delete"),
			}, "title"),
		},
		{
			Name:        NameRenameFile,
			Description: "Rename a note without changing its content.",
			Side:        SideClient,
			Parameters: objectSchema(map[string]interface{}{
				"title":     stringParam("Current title of the note"),
				"new_title": stringParam("New title for the note"),
			}, "title", "new_title"),
		},
	}
}

// ServerToolFuncs carries the executor closures the services layer injects
// when assembling the registry.
type ServerToolFuncs struct {
	ReadFile            ExecuteFunc
	SearchFiles         ExecuteFunc
	WebSearchWithRAG    ExecuteFunc // nil when web search is not configured
	SearchKnowledgeBase ExecuteFunc
}

// ServerTools returns the tools that execute during the request.
func ServerTools(funcs ServerToolFuncs) []*Tool {
	out := []*Tool{
		{
			Name:        NameReadFile,
			Description: "Read the full current content of one of the user's notes, with line numbers.",
			Side:        SideServer,
			Execute:     funcs.ReadFile,
			Parameters: objectSchema(map[string]interface{}{
				"title": stringParam("Title of the note to read"),
			}, "title"),
		},
		{
			Name:        NameSearchFiles,
			Description: "Search the user's notes by title or content and return matching snippets.",
			Side:        SideServer,
			Execute:     funcs.SearchFiles,
			Parameters: objectSchema(map[string]interface{}{
				"query":       stringParam("Search query"),
				"search_type": stringParam("Where to search: title, content or both (default both)"),
			}, "query"),
		},
		{
			Name:        NameSearchKnowledgeBase,
			Description: "Semantic search over an indexed knowledge-base collection. Returns the most similar chunks.",
			Side:        SideServer,
			Execute:     funcs.SearchKnowledgeBase,
			Parameters: objectSchema(map[string]interface{}{
				"collection_name": stringParam("Name of the collection to search"),
				"query":           stringParam("What to look for"),
				"top_k":           integerParam("How many chunks to return (default 5)"),
			}, "collection_name", "query"),
		},
	}
	if funcs.WebSearchWithRAG != nil {
		out = append(out, &Tool{
			Name:        NameWebSearchWithRAG,
			Description: "Search the web and index the top results into a temporary knowledge-base collection. Follow up with search_knowledge_base on the returned collection_name.",
			Side:        SideServer,
			Execute:     funcs.WebSearchWithRAG,
			Parameters: objectSchema(map[string]interface{}{
				"query": stringParam("Web search query"),
			}, "query"),
		})
	}
	return out
}

// BuildRegistry assembles the full catalog for one server instance.
func BuildRegistry(funcs ServerToolFuncs) (*Registry, error) {
	registry := NewRegistry()
	for _, t := range ClientTools() {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	for _, t := range ServerTools(funcs) {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
