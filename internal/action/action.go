// Package action turns statically declared action metadata into invocable
// actions bound to a wallet provider.
package action

import (
	"context"
	"encoding/json"
)

// InvokeFunc runs an action with raw JSON arguments and returns a
// human-readable report.
type InvokeFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Interceptor wraps an invocation. It must call next to run the action.
type Interceptor func(ctx context.Context, name string, args json.RawMessage, next InvokeFunc) (string, error)

// Action is a runtime action. Actions are rebuilt on every GetActions call.
type Action struct {
	Name        string
	Description string
	Schema      *Schema
	invoke      InvokeFunc
}

// New builds an action around fn.
func New(name, description string, schema *Schema, fn InvokeFunc) Action {
	return Action{Name: name, Description: description, Schema: schema, invoke: fn}
}

// Invoke runs the action.
func (a Action) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	if a.invoke == nil {
		return "", actionError(a.Name, nil, "action has no handler")
	}
	return a.invoke(ctx, args)
}

// Intercept returns a copy of a whose invocations pass through ic.
func (a Action) Intercept(ic Interceptor) Action {
	if ic == nil {
		return a
	}
	next := a.invoke
	name := a.Name
	a.invoke = func(ctx context.Context, args json.RawMessage) (string, error) {
		return ic(ctx, name, args, next)
	}
	return a
}
