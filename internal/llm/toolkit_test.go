package llm

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/DenzelPenzel/ton-agent/internal/action"
	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

type greetArgs struct {
	Name string `json:"name"`
}

func greetAction() action.Action {
	schema := action.MustSchemaFor[greetArgs]()
	return action.New("greet", "Say hello", schema, func(_ context.Context, raw json.RawMessage) (string, error) {
		if err := schema.Validate(raw); err != nil {
			return "", xerrors.Wrap(xerrors.CodeAction, err, "invalid arguments")
		}
		var args greetArgs
		_ = json.Unmarshal(raw, &args)
		return "hello " + args.Name, nil
	})
}

func TestToolsDescriptor(t *testing.T) {
	tools := Tools([]action.Action{greetAction()})
	if len(tools) != 1 {
		t.Fatalf("expected one tool, got %d", len(tools))
	}
	raw, err := json.Marshal(tools[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	if decoded["type"] != "function" {
		t.Fatalf("unexpected type %v", decoded["type"])
	}
	fn := decoded["function"].(map[string]any)
	if fn["name"] != "greet" || fn["description"] != "Say hello" {
		t.Fatalf("unexpected function %v", fn)
	}
	params := fn["parameters"].(map[string]any)
	if params["type"] != "object" {
		t.Fatalf("unexpected parameters %v", params)
	}
}

func TestToolkitCallAndDispatch(t *testing.T) {
	tk, err := NewToolkit([]action.Action{greetAction()})
	if err != nil {
		t.Fatalf("NewToolkit returned error: %v", err)
	}
	out, err := tk.Call(context.Background(), "greet", `{"name":"ton"}`)
	if err != nil || out != "hello ton" {
		t.Fatalf("unexpected call result %q %v", out, err)
	}
	if _, err := tk.Call(context.Background(), "missing", `{}`); !xerrors.Is(err, xerrors.CodeAction) {
		t.Fatalf("expected action error, got %v", err)
	}

	var ok, bad ToolCall
	ok.ID, ok.Function.Name, ok.Function.Arguments = "call_1", "greet", `{"name":"a"}`
	bad.ID, bad.Function.Name, bad.Function.Arguments = "call_2", "greet", `{"name":1}`
	replies := tk.Dispatch(context.Background(), []ToolCall{ok, bad})
	if len(replies) != 2 {
		t.Fatalf("expected two replies")
	}
	if replies[0].Content != "hello a" || replies[0].ToolCallID != "call_1" || replies[0].Role != "tool" {
		t.Fatalf("unexpected reply %+v", replies[0])
	}
	if !strings.HasPrefix(replies[1].Content, "Error: ") {
		t.Fatalf("failure should be reported in content, got %q", replies[1].Content)
	}
}

func TestToolkitRejectsDuplicates(t *testing.T) {
	if _, err := NewToolkit([]action.Action{greetAction(), greetAction()}); !xerrors.Is(err, xerrors.CodeActionProvider) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestDescriptions(t *testing.T) {
	tk, _ := NewToolkit([]action.Action{greetAction()})
	if tk.Descriptions() != "- greet: Say hello" {
		t.Fatalf("unexpected descriptions %q", tk.Descriptions())
	}
}
