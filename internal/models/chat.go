package models

// ChatMessage is one turn of conversation history as clients store it.
// Role uses the client vocabulary ("user"/"human", "ai"/"assistant",
// "system"); the orchestrator normalizes it before talking to a provider.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"` // Unix milliseconds
}

// FileInfo is a client-side note as seen in the file list.
type FileInfo struct {
	Title      string `json:"title"`
	Category   string `json:"category,omitempty"`
	Tags       string `json:"tags,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
	CharCount  int    `json:"charCount,omitempty"`
	IsArchived bool   `json:"isArchived,omitempty"`
}

// ChatContext is everything the client chooses to reveal about its local
// state for one request. All fields optional.
type ChatContext struct {
	CurrentScreen        string        `json:"currentScreen,omitempty"` // EditScreen, FilelistScreen
	FilePath             string        `json:"filePath,omitempty"`
	FileContent          string        `json:"fileContent,omitempty"`
	FileList             []FileInfo    `json:"fileList,omitempty"`
	AllFiles             []FileInfo    `json:"allFiles,omitempty"`
	AttachedFileContent  string        `json:"attachedFileContent,omitempty"`
	ConversationHistory  []ChatMessage `json:"conversationHistory,omitempty"`
	SendFileContextToLLM *bool         `json:"sendFileContextToLLM,omitempty"` // nil means true
}

// ChatRequest is the POST /api/chat body.
type ChatRequest struct {
	Message  string       `json:"message"`
	Provider string       `json:"provider"`
	Model    string       `json:"model"`
	Context  *ChatContext `json:"context,omitempty"`
}

// Command actions the server may ask a client to apply. All file mutations
// happen client-side; the server only ever describes them.
const (
	ActionCreateFile    = "create_file"
	ActionEditFile      = "edit_file"
	ActionEditFileLines = "edit_file_lines"
	ActionDeleteFile    = "delete_file"
	ActionRenameFile    = "rename_file"
)

// Command is a structured file-mutation intent extracted from an agent
// tool call.
type Command struct {
	Action    string   `json:"action"`
	Title     string   `json:"title"`
	NewTitle  string   `json:"new_title,omitempty"`
	Content   string   `json:"content,omitempty"`
	Category  string   `json:"category,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	StartLine int      `json:"start_line,omitempty"` // 1-based, inclusive
	EndLine   int      `json:"end_line,omitempty"`
}

// TokenUsage reports both the provider-metered cost of this request and
// how full the conversation window is.
type TokenUsage struct {
	CurrentTokens int     `json:"currentTokens"`
	MaxTokens     int     `json:"maxTokens"`
	UsageRatio    float64 `json:"usageRatio"`
	NeedsSummary  bool    `json:"needsSummary"`
	InputTokens   int     `json:"inputTokens"`
	OutputTokens  int     `json:"outputTokens"`
	TotalTokens   int     `json:"totalTokens"`
}

// ChatResponse is the POST /api/chat reply.
type ChatResponse struct {
	Message      string      `json:"message"`
	Commands     []Command   `json:"commands,omitempty"`
	Provider     string      `json:"provider"`
	Model        string      `json:"model"`
	HistoryCount int         `json:"historyCount"`
	TokenUsage   *TokenUsage `json:"tokenUsage,omitempty"`
	Warning      string      `json:"warning,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// SummarizeRequest is the POST /api/chat/summarize body.
type SummarizeRequest struct {
	ConversationHistory []ChatMessage `json:"conversationHistory"`
	MaxTokens           int           `json:"max_tokens,omitempty"`      // default 4000
	PreserveRecent      int           `json:"preserve_recent,omitempty"` // default 10
	Provider            string        `json:"provider"`
	Model               string        `json:"model,omitempty"`
}

// SummarizeResponse returns the compressed history: one system-role summary
// message plus the untouched recent tail.
type SummarizeResponse struct {
	Summary          ChatMessage   `json:"summary"`
	RecentMessages   []ChatMessage `json:"recentMessages"`
	CompressionRatio float64       `json:"compressionRatio"`
	OriginalTokens   int           `json:"originalTokens"`
	CompressedTokens int           `json:"compressedTokens"`
	TokenUsage       *TokenUsage   `json:"tokenUsage,omitempty"`
	Model            string        `json:"model"`
	Warning          string        `json:"warning,omitempty"`
}

// ModelInfo describes one selectable model with its billing metadata.
type ModelInfo struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName,omitempty"`
	Category       string `json:"category"`
	PricePerMToken int64  `json:"pricePerMToken"`
}

// ProviderInfo is one entry of GET /api/llm-providers.
type ProviderInfo struct {
	Name      string      `json:"name"`
	Available bool        `json:"available"`
	Models    []ModelInfo `json:"models"`
}
