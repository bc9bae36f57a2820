package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/llm"
)

// scriptedGenerator returns canned replies in order, repeating the last.
type scriptedGenerator struct {
	replies []*llm.Reply
	err     error
	calls   int
}

func (g *scriptedGenerator) Generate(ctx context.Context, msgs []conversation.Message, stream llm.StreamFunc) (*llm.Reply, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	idx := g.calls - 1
	if idx >= len(g.replies) {
		idx = len(g.replies) - 1
	}
	reply := g.replies[idx]
	if stream != nil && reply.Text != "" {
		if err := stream(ctx, reply.Text); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

func planState(t *testing.T, calls ...conversation.ToolCall) *conversation.State {
	t.Helper()
	state := conversation.NewState("sess-1")
	state.Append(conversation.Message{Role: conversation.RoleUser, Content: "uptime分析列表"})
	state.Append(conversation.Message{
		Role:      conversation.RoleAssistant,
		Content:   "调用工具：uptime_report",
		ToolCalls: calls,
	})
	return state
}

func TestExecutor_SingleRound(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(&staticTool{name: "uptime_report", out: `{"uptime":0.99}`})

	gen := &scriptedGenerator{replies: []*llm.Reply{{Text: "过去一周平均在线率为 99%。"}}}
	exec := NewExecutor(registry, gen, 0, nil)

	state := planState(t, conversation.ToolCall{
		Name:      "uptime_report",
		Arguments: map[string]any{"userText": "uptime分析列表"},
		CallID:    "call_1",
	})

	var streamed strings.Builder
	toolDone := 0
	answer, err := exec.Run(context.Background(), state, true, Events{
		Stream: func(_ context.Context, delta string) error {
			streamed.WriteString(delta)
			return nil
		},
		ToolDone: func(context.Context) error { toolDone++; return nil },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "过去一周平均在线率为 99%。" {
		t.Errorf("answer = %q", answer)
	}
	if streamed.String() != answer {
		t.Errorf("streamed %q, want %q", streamed.String(), answer)
	}
	if toolDone != 1 {
		t.Errorf("ToolDone fired %d times, want 1", toolDone)
	}

	// History: user, assistant(plan), tool result, assistant(summary).
	if len(state.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(state.Messages))
	}
	toolMsg := state.Messages[2]
	if toolMsg.Role != conversation.RoleTool || toolMsg.CallID != "call_1" {
		t.Errorf("tool result message = %+v", toolMsg)
	}
	if err := state.Validate(); err != nil {
		t.Errorf("state invalid after run: %v", err)
	}
}

func TestExecutor_AuthInjection(t *testing.T) {
	t.Parallel()

	authed := &staticTool{name: "uptime_report", out: "{}"}
	open := &staticTool{name: "weather", out: "{}"}

	registry := NewRegistry()
	registry.Register(authed)
	registry.Register(open)
	registry.RequireAuth("uptime_report")

	gen := &scriptedGenerator{replies: []*llm.Reply{{Text: "done"}}}
	exec := NewExecutor(registry, gen, 0, nil)

	state := planState(t,
		conversation.ToolCall{Name: "uptime_report", Arguments: map[string]any{"userText": "x"}, CallID: "call_1"},
		conversation.ToolCall{Name: "weather", Arguments: map[string]any{"userText": "x"}, CallID: "call_2"},
	)
	state.AuthToken = "secret-token"

	if _, err := exec.Run(context.Background(), state, true, Events{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if authed.gotArgs[AuthTokenArg] != "secret-token" {
		t.Errorf("auth-required tool did not receive token: %v", authed.gotArgs)
	}
	if _, ok := open.gotArgs[AuthTokenArg]; ok {
		t.Errorf("tool outside the auth set received a token: %v", open.gotArgs)
	}

	// The plan message keeps its original arguments.
	planCalls := state.Messages[1].ToolCalls
	if _, ok := planCalls[0].Arguments[AuthTokenArg]; ok {
		t.Error("emitted plan message was mutated by injection")
	}
}

func TestExecutor_ToolFailureContinues(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(&staticTool{name: "station_info", err: errors.New("backend down")})

	gen := &scriptedGenerator{replies: []*llm.Reply{{Text: "查询失败，请稍后再试。"}}}
	exec := NewExecutor(registry, gen, 0, nil)

	state := planState(t, conversation.ToolCall{Name: "station_info", CallID: "call_1"})

	answer, err := exec.Run(context.Background(), state, true, Events{})
	if err != nil {
		t.Fatalf("tool failure should not fail the turn: %v", err)
	}
	if answer == "" {
		t.Error("expected an answer despite the tool failure")
	}

	toolMsg := state.Messages[2]
	if !strings.Contains(toolMsg.Content, "backend down") {
		t.Errorf("tool result should carry the error payload, got %q", toolMsg.Content)
	}
	if !strings.Contains(toolMsg.Content, "error") {
		t.Errorf("error payload should be structured, got %q", toolMsg.Content)
	}
}

func TestExecutor_LoopExceeded(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(&staticTool{name: "uptime_report", out: "{}"})

	// The model keeps requesting another call forever.
	gen := &scriptedGenerator{replies: []*llm.Reply{{
		Text:      "再查一次",
		ToolCalls: []conversation.ToolCall{{Name: "uptime_report", CallID: "call_9"}},
	}}}
	exec := NewExecutor(registry, gen, 3, nil)

	state := planState(t, conversation.ToolCall{Name: "uptime_report", CallID: "call_1"})

	answer, err := exec.Run(context.Background(), state, true, Events{})
	if !errors.Is(err, ErrLoopExceeded) {
		t.Fatalf("expected ErrLoopExceeded, got %v", err)
	}
	if answer != MsgLoopExceeded {
		t.Errorf("answer = %q, want loop-exceeded message", answer)
	}
	if gen.calls != 3 {
		t.Errorf("generator called %d times, want 3", gen.calls)
	}
	last := state.LastMessage()
	if last.Role != conversation.RoleAssistant || last.Content != MsgLoopExceeded {
		t.Errorf("final message = %+v", last)
	}
}

func TestExecutor_NoSummarize(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(&staticTool{name: "station_info", out: `{"name":"深圳一号站"}`})

	gen := &scriptedGenerator{replies: []*llm.Reply{{Text: "should not be called"}}}
	exec := NewExecutor(registry, gen, 0, nil)

	state := planState(t, conversation.ToolCall{Name: "station_info", CallID: "call_1"})

	answer, err := exec.Run(context.Background(), state, false, Events{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != `{"name":"深圳一号站"}` {
		t.Errorf("answer = %q", answer)
	}
	if gen.calls != 0 {
		t.Errorf("generator should not run when summarize is off, ran %d times", gen.calls)
	}
}

func TestExecutor_NoPendingCalls(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(NewRegistry(), &scriptedGenerator{replies: []*llm.Reply{{}}}, 0, nil)

	state := conversation.NewState("sess-1")
	state.Append(conversation.Message{Role: conversation.RoleUser, Content: "hi"})

	if _, err := exec.Run(context.Background(), state, true, Events{}); !errors.Is(err, ErrNoToolCalls) {
		t.Errorf("expected ErrNoToolCalls, got %v", err)
	}
}
