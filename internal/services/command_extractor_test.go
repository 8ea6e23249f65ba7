package services

import (
	"reflect"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"notebridge/internal/models"
)

func TestParseToolCall(t *testing.T) {
	tc := llms.ToolCall{
		ID:   "call_1",
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      "create_file",
			Arguments: `{"title":"groceries","content":"milk"}`,
		},
	}
	parsed, err := ParseToolCall(tc)
	if err != nil {
		t.Fatalf("ParseToolCall: %v", err)
	}
	if parsed.Name != "create_file" || parsed.Args["title"] != "groceries" {
		t.Errorf("unexpected parse: %+v", parsed)
	}
}

func TestParseToolCallRejectsBadJSON(t *testing.T) {
	tc := llms.ToolCall{
		ID:           "call_2",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: "edit_file", Arguments: `{"title": "x"`},
	}
	if _, err := ParseToolCall(tc); err == nil {
		t.Fatal("expected error for truncated JSON arguments")
	}
}

func TestExtractCommands(t *testing.T) {
	tests := []struct {
		name  string
		calls []ToolCall
		want  []models.Command
	}{
		{
			name: "create with tags",
			calls: []ToolCall{{
				Name: "create_file",
				Args: map[string]interface{}{"title": "trip", "content": "pack", "category": "travel", "tags": "summer, beach ,"},
			}},
			want: []models.Command{{
				Action: models.ActionCreateFile, Title: "trip", Content: "pack",
				Category: "travel", Tags: []string{"summer", "beach"},
			}},
		},
		{
			name: "edit lines with float coords",
			calls: []ToolCall{{
				Name: "edit_file_lines",
				Args: map[string]interface{}{"title": "trip", "content": "new", "start_line": float64(2), "end_line": float64(4)},
			}},
			want: []models.Command{{
				Action: models.ActionEditFileLines, Title: "trip", Content: "new", StartLine: 2, EndLine: 4,
			}},
		},
		{
			name: "rename",
			calls: []ToolCall{{
				Name: "rename_file",
				Args: map[string]interface{}{"title": "old", "new_title": "new"},
			}},
			want: []models.Command{{Action: models.ActionRenameFile, Title: "old", NewTitle: "new"}},
		},
		{
			name: "server tools are skipped",
			calls: []ToolCall{
				{Name: "read_file", Args: map[string]interface{}{"title": "trip"}},
				{Name: "search_knowledge_base", Args: map[string]interface{}{"query": "q"}},
				{Name: "delete_file", Args: map[string]interface{}{"title": "trip"}},
			},
			want: []models.Command{{Action: models.ActionDeleteFile, Title: "trip"}},
		},
		{
			name: "edit lines without content is dropped",
			calls: []ToolCall{{
				Name: "edit_file_lines",
				Args: map[string]interface{}{"title": "trip", "start_line": float64(2), "end_line": float64(4)},
			}},
			want: []models.Command{},
		},
		{
			name: "fractional line number is dropped",
			calls: []ToolCall{{
				Name: "edit_file_lines",
				Args: map[string]interface{}{"title": "t", "content": "c", "start_line": 1.5, "end_line": float64(2)},
			}},
			want: []models.Command{},
		},
		{
			name: "inverted range is dropped",
			calls: []ToolCall{{
				Name: "edit_file_lines",
				Args: map[string]interface{}{"title": "t", "content": "c", "start_line": float64(5), "end_line": float64(2)},
			}},
			want: []models.Command{},
		},
		{
			name:  "missing title is dropped",
			calls: []ToolCall{{Name: "delete_file", Args: map[string]interface{}{}}},
			want:  []models.Command{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCommands(tt.calls)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCommands = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEditFileLinesRequiresContent(t *testing.T) {
	// A line edit with no replacement text must fail loudly; a silent empty
	// string would wipe the selected lines.
	_, err := commandFromToolCall(ToolCall{
		Name: models.ActionEditFileLines,
		Args: map[string]interface{}{"title": "trip", "start_line": float64(2), "end_line": float64(4)},
	})
	if err == nil {
		t.Fatal("expected a missing-content error")
	}
	if !strings.Contains(err.Error(), "content") {
		t.Errorf("error should name the missing argument: %v", err)
	}
}

func TestRequiredLineStringCoercion(t *testing.T) {
	got, err := requiredLine(map[string]interface{}{"start_line": "7"}, "start_line")
	if err != nil || got != 7 {
		t.Errorf("requiredLine(\"7\") = %d, %v; want 7, nil", got, err)
	}
	if _, err := requiredLine(map[string]interface{}{"start_line": "abc"}, "start_line"); err == nil {
		t.Error("expected error for non-numeric string")
	}
	if _, err := requiredLine(map[string]interface{}{"start_line": float64(0)}, "start_line"); err == nil {
		t.Error("expected error for line 0")
	}
}
