// Package tool provides the tool registry, credential injection, and the
// bounded execution loop that runs planned tool calls until the model
// requests no further work.
package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/stationmind/stationmind/internal/conversation"
)

// AuthTokenArg is the argument key credentials are injected under.
const AuthTokenArg = "authToken"

var (
	// ErrUnknownTool indicates a call named a tool the registry does not hold.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrNoToolCalls indicates the executor was entered without pending calls.
	ErrNoToolCalls = errors.New("no tool calls to execute")
	// ErrLoopExceeded indicates the execution loop hit its iteration bound.
	ErrLoopExceeded = errors.New("tool loop exceeded")
)

// Invoker is one named tool. Invoke blocks until the tool completes or
// ctx is done; implementations own their timeouts beneath that.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the invokable tools and the set of tool names that
// require session credentials. Read-only after setup, safe for
// concurrent lookups.
type Registry struct {
	tools        map[string]Invoker
	authRequired map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:        make(map[string]Invoker),
		authRequired: make(map[string]struct{}),
	}
}

// Register adds inv under its name, replacing any previous registration.
func (r *Registry) Register(inv Invoker) {
	r.tools[inv.Name()] = inv
}

// RequireAuth marks tool names as needing credential injection before
// dispatch. Names need not be registered yet.
func (r *Registry) RequireAuth(names ...string) {
	for _, name := range names {
		r.authRequired[name] = struct{}{}
	}
}

// AuthRequired reports whether name needs credential injection.
func (r *Registry) AuthRequired(name string) bool {
	_, ok := r.authRequired[name]
	return ok
}

// Lookup returns the invoker registered under name.
func (r *Registry) Lookup(name string) (Invoker, bool) {
	inv, ok := r.tools[name]
	return inv, ok
}

// Invoke dispatches one call to its registered tool.
func (r *Registry) Invoke(ctx context.Context, call conversation.ToolCall) (string, error) {
	inv, ok := r.tools[call.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	return inv.Invoke(ctx, call.Arguments)
}

// InjectAuth returns a copy of call with token added to its arguments.
// The input call and its argument map are never mutated, so previously
// emitted messages keep their original arguments.
func InjectAuth(call conversation.ToolCall, token string) conversation.ToolCall {
	out := call.Clone()
	if out.Arguments == nil {
		out.Arguments = make(map[string]any, 1)
	}
	out.Arguments[AuthTokenArg] = token
	return out
}
