package llm

import (
	"github.com/DenzelPenzel/ton-agent/internal/action"
)

// Function describes one callable function.
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool is a function tool descriptor.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// ToolCall is a model's request to run a tool. Arguments is a JSON string.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ToolMessage answers a ToolCall.
type ToolMessage struct {
	Role       string `json:"role"`
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

// Tools converts actions into tool descriptors, keeping their order.
func Tools(actions []action.Action) []Tool {
	tools := make([]Tool, 0, len(actions))
	for _, a := range actions {
		tools = append(tools, Tool{
			Type: "function",
			Function: Function{
				Name:        a.Name,
				Description: a.Description,
				Parameters:  a.Schema.Parameters(),
			},
		})
	}
	return tools
}
