package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DenzelPenzel/ton-agent/internal/action"
	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

// Toolkit dispatches tool calls to a fixed set of actions.
type Toolkit struct {
	order   []string
	actions map[string]action.Action
}

// NewToolkit indexes actions by name. Later duplicates are rejected.
func NewToolkit(actions []action.Action) (*Toolkit, error) {
	tk := &Toolkit{actions: make(map[string]action.Action, len(actions))}
	for _, a := range actions {
		if _, exists := tk.actions[a.Name]; exists {
			return nil, xerrors.New(xerrors.CodeActionProvider, "duplicate tool "+a.Name,
				xerrors.WithMetadata("action", a.Name))
		}
		tk.actions[a.Name] = a
		tk.order = append(tk.order, a.Name)
	}
	return tk, nil
}

// Tools returns the descriptors in registration order.
func (tk *Toolkit) Tools() []Tool {
	list := make([]action.Action, 0, len(tk.order))
	for _, name := range tk.order {
		list = append(list, tk.actions[name])
	}
	return Tools(list)
}

// Call runs the named tool with a JSON encoded argument string.
func (tk *Toolkit) Call(ctx context.Context, name, arguments string) (string, error) {
	a, ok := tk.actions[name]
	if !ok {
		return "", xerrors.New(xerrors.CodeAction, "unknown tool "+name,
			xerrors.WithMetadata("action", name))
	}
	return a.Invoke(ctx, json.RawMessage(arguments))
}

// Dispatch answers every call. Failures are reported in the message content
// so the model can react to them.
func (tk *Toolkit) Dispatch(ctx context.Context, calls []ToolCall) []ToolMessage {
	replies := make([]ToolMessage, 0, len(calls))
	for _, call := range calls {
		out, err := tk.Call(ctx, call.Function.Name, call.Function.Arguments)
		if err != nil {
			out = "Error: " + err.Error()
		}
		replies = append(replies, ToolMessage{
			Role:       "tool",
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    out,
		})
	}
	return replies
}

// Descriptions renders a Markdown list of the available tools, suitable for
// a system prompt.
func (tk *Toolkit) Descriptions() string {
	var b strings.Builder
	for _, name := range tk.order {
		fmt.Fprintf(&b, "- %s: %s\n", name, tk.actions[name].Description)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
