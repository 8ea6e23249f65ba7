package services

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"notebridge/internal/models"
)

// ToolCall is a provider tool call with its arguments already parsed.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ParseToolCall decodes one provider tool call. A malformed argument blob
// is returned as an error so the agent loop can feed it back to the model.
func ParseToolCall(tc llms.ToolCall) (*ToolCall, error) {
	if tc.FunctionCall == nil {
		return nil, fmt.Errorf("tool call %s has no function payload", tc.ID)
	}
	args := map[string]interface{}{}
	raw := strings.TrimSpace(tc.FunctionCall.Arguments)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("tool %s: arguments are not valid JSON: %w", tc.FunctionCall.Name, err)
		}
	}
	return &ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, Args: args}, nil
}

// ExtractCommands turns the file-mutation tool calls of one agent run into
// client commands. Server-side tools and unknown names are skipped.
func ExtractCommands(calls []ToolCall) []models.Command {
	commands := []models.Command{}
	for _, call := range calls {
		cmd, err := commandFromToolCall(call)
		if err != nil {
			log.Printf("⚠️ [COMMANDS] Skipping %s: %v", call.Name, err)
			continue
		}
		if cmd != nil {
			commands = append(commands, *cmd)
		}
	}
	return commands
}

func commandFromToolCall(call ToolCall) (*models.Command, error) {
	switch call.Name {
	case models.ActionCreateFile:
		title, err := requiredString(call.Args, "title")
		if err != nil {
			return nil, err
		}
		return &models.Command{
			Action:   models.ActionCreateFile,
			Title:    title,
			Content:  optionalString(call.Args, "content"),
			Category: optionalString(call.Args, "category"),
			Tags:     splitTags(optionalString(call.Args, "tags")),
		}, nil

	case models.ActionEditFile:
		title, err := requiredString(call.Args, "title")
		if err != nil {
			return nil, err
		}
		content, err := requiredString(call.Args, "content")
		if err != nil {
			return nil, err
		}
		return &models.Command{Action: models.ActionEditFile, Title: title, Content: content}, nil

	case models.ActionEditFileLines:
		title, err := requiredString(call.Args, "title")
		if err != nil {
			return nil, err
		}
		content, err := requiredString(call.Args, "content")
		if err != nil {
			return nil, err
		}
		start, err := requiredLine(call.Args, "start_line")
		if err != nil {
			return nil, err
		}
		end, err := requiredLine(call.Args, "end_line")
		if err != nil {
			return nil, err
		}
		if end < start {
			return nil, fmt.Errorf("end_line %d precedes start_line %d", end, start)
		}
		return &models.Command{
			Action:    models.ActionEditFileLines,
			Title:     title,
			Content:   content,
			StartLine: start,
			EndLine:   end,
		}, nil

	case models.ActionDeleteFile:
		title, err := requiredString(call.Args, "title")
		if err != nil {
			return nil, err
		}
		return &models.Command{Action: models.ActionDeleteFile, Title: title}, nil

	case models.ActionRenameFile:
		title, err := requiredString(call.Args, "title")
		if err != nil {
			return nil, err
		}
		newTitle, err := requiredString(call.Args, "new_title")
		if err != nil {
			return nil, err
		}
		return &models.Command{Action: models.ActionRenameFile, Title: title, NewTitle: newTitle}, nil

	default:
		// read_file, search_files, web_search_with_rag etc. run server-side
		// or via the bridge; they never become client commands.
		return nil, nil
	}
}

func requiredString(args map[string]interface{}, key string) (string, error) {
	s := optionalString(args, key)
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return s, nil
}

func optionalString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// requiredLine accepts JSON numbers (always float64 after Unmarshal) and
// numeric strings, rejecting anything non-integral or below 1.
func requiredLine(args map[string]interface{}, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing required argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%s must be a whole line number, got %v", key, n)
		}
		if n < 1 {
			return 0, fmt.Errorf("%s must be >= 1, got %v", key, n)
		}
		return int(n), nil
	case string:
		var parsed float64
		if err := json.Unmarshal([]byte(strings.TrimSpace(n)), &parsed); err != nil {
			return 0, fmt.Errorf("%s is not a number: %q", key, n)
		}
		return requiredLine(map[string]interface{}{key: parsed}, key)
	default:
		return 0, fmt.Errorf("%s is not a number", key)
	}
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
