package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/llm"
)

// MsgLoopExceeded is returned to the user when tool execution hits the
// iteration bound.
const MsgLoopExceeded = "工具调用次数超出限制，已停止执行。"

// DefaultMaxIterations bounds the execute-decide loop.
const DefaultMaxIterations = 10

// Events receives progress notifications during a run. Either field may
// be nil.
type Events struct {
	// Stream receives summary text increments in order of production.
	Stream llm.StreamFunc
	// ToolDone fires after each batch of tool invocations completes.
	ToolDone func(ctx context.Context) error
}

// Executor runs the tool-call loop for one turn: dispatch every pending
// call, feed the results back to the model, and repeat while the model
// keeps requesting calls. Terminates within MaxIterations rounds.
type Executor struct {
	registry      *Registry
	gen           llm.Generator
	maxIterations int
	logger        *slog.Logger
}

// NewExecutor creates an Executor. maxIterations <= 0 selects the default.
func NewExecutor(registry *Registry, gen llm.Generator, maxIterations int, logger *slog.Logger) *Executor {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:      registry,
		gen:           gen,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// Run executes the pending tool calls on state's newest assistant message
// and appends tool-result and assistant messages to state as it goes.
// When summarize is false the loop stops after the first execution round
// and the final tool output becomes the answer. Returns the final answer
// text; on hitting the iteration bound the answer is MsgLoopExceeded and
// the error wraps ErrLoopExceeded.
func (e *Executor) Run(ctx context.Context, state *conversation.State, summarize bool, ev Events) (string, error) {
	last := state.LastMessage()
	if last == nil || last.Role != conversation.RoleAssistant || len(last.ToolCalls) == 0 {
		return "", ErrNoToolCalls
	}
	calls := last.ToolCalls

	var lastOutput string
	for round := 0; ; round++ {
		if round >= e.maxIterations {
			e.logger.Warn("tool loop exceeded iteration bound",
				"session_id", state.SessionID,
				"max_iterations", e.maxIterations,
			)
			state.Append(conversation.Message{
				Role:    conversation.RoleAssistant,
				Content: MsgLoopExceeded,
			})
			return MsgLoopExceeded, fmt.Errorf("%w after %d rounds", ErrLoopExceeded, e.maxIterations)
		}

		for _, call := range calls {
			out := e.dispatch(ctx, state, call)
			lastOutput = out
			state.Append(conversation.Message{
				Role:    conversation.RoleTool,
				Content: out,
				CallID:  call.CallID,
			})
		}
		if ev.ToolDone != nil {
			if err := ev.ToolDone(ctx); err != nil {
				return "", fmt.Errorf("tool done event: %w", err)
			}
		}

		if !summarize {
			return lastOutput, nil
		}

		reply, err := e.gen.Generate(ctx, state.Messages, ev.Stream)
		if err != nil {
			return "", fmt.Errorf("summarizing tool results: %w", err)
		}
		state.Append(conversation.Message{
			Role:      conversation.RoleAssistant,
			Content:   reply.Text,
			ToolCalls: reply.ToolCalls,
		})

		if len(reply.ToolCalls) == 0 {
			return reply.Text, nil
		}
		calls = reply.ToolCalls
	}
}

// dispatch invokes one call, injecting credentials for auth-required
// tools. Failures become an error payload so the loop keeps going.
func (e *Executor) dispatch(ctx context.Context, state *conversation.State, call conversation.ToolCall) string {
	if e.registry.AuthRequired(call.Name) {
		call = InjectAuth(call, state.AuthToken)
	}
	out, err := e.registry.Invoke(ctx, call)
	if err != nil {
		e.logger.Warn("tool invocation failed",
			"tool", call.Name,
			"call_id", call.CallID,
			"error", err,
		)
		return errorPayload(err)
	}
	return out
}

// errorPayload renders a tool failure as a JSON object the model can read.
func errorPayload(err error) string {
	payload, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return `{"error": "` + strings.ReplaceAll(err.Error(), `"`, `'`) + `"}`
	}
	return string(payload)
}
