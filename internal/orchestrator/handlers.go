package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stationmind/stationmind/internal/chitchat"
	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/intent"
	"github.com/stationmind/stationmind/internal/llm"
	"github.com/stationmind/stationmind/internal/plan"
	"github.com/stationmind/stationmind/internal/retrieval"
	"github.com/stationmind/stationmind/internal/session"
	"github.com/stationmind/stationmind/internal/tool"
)

// BusinessHandler plans and executes tool calls for business intents.
// Plans whose tools are in the confirmation set suspend the session
// instead of executing immediately.
type BusinessHandler struct {
	intents  *intent.Map
	executor *tool.Executor
	confirm  map[string]struct{}
	logger   *slog.Logger
}

// NewBusinessHandler creates a BusinessHandler. confirmTools lists tool
// names that need user confirmation before execution.
func NewBusinessHandler(intents *intent.Map, executor *tool.Executor, confirmTools []string, logger *slog.Logger) *BusinessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	confirm := make(map[string]struct{}, len(confirmTools))
	for _, name := range confirmTools {
		confirm[name] = struct{}{}
	}
	return &BusinessHandler{
		intents:  intents,
		executor: executor,
		confirm:  confirm,
		logger:   logger,
	}
}

// Handle implements Handler.
func (h *BusinessHandler) Handle(ctx context.Context, state *conversation.State, _ []conversation.Message, ev Events) (Outcome, error) {
	userText := state.LastUserInput()

	built := plan.Build(h.intents, state.IntentKey, userText)
	if built.Terminal {
		state.Append(built.Message)
		if err := emitChunk(ctx, ev, built.Message.Content); err != nil {
			return Outcome{}, err
		}
		return Outcome{Answer: built.Message.Content}, nil
	}

	state.Plan = built.Plan
	if names := h.confirmNames(built.Plan); len(names) > 0 {
		prompt := fmt.Sprintf("即将调用工具：%s，是否继续执行？", strings.Join(names, "，"))
		state.Append(conversation.Message{Role: conversation.RoleAssistant, Content: prompt})
		if err := emitChunk(ctx, ev, prompt); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Answer: prompt,
			Interrupt: &session.Interrupt{
				Prompt:    prompt,
				Plan:      built.Plan,
				UserInput: userText,
				CreatedAt: time.Now(),
			},
		}, nil
	}

	state.Append(built.Message)
	return h.execute(ctx, state, built.Plan, ev)
}

// Resume continues a suspended plan after the user confirmed it.
func (h *BusinessHandler) Resume(ctx context.Context, state *conversation.State, intr *session.Interrupt, ev Events) (Outcome, error) {
	if intr.Plan == nil || len(intr.Plan.Steps) == 0 {
		state.Append(conversation.Message{Role: conversation.RoleAssistant, Content: MsgCanceled})
		if err := emitChunk(ctx, ev, MsgCanceled); err != nil {
			return Outcome{}, err
		}
		return Outcome{Answer: MsgCanceled}, nil
	}
	state.Plan = intr.Plan
	state.Append(plan.CallsMessage(intr.Plan))
	return h.execute(ctx, state, intr.Plan, ev)
}

// execute runs the pending plan and clears it once the turn completes.
func (h *BusinessHandler) execute(ctx context.Context, state *conversation.State, p *conversation.Plan, ev Events) (Outcome, error) {
	summarize := len(p.Steps) > 0 && p.Steps[0].SummarizeAfter

	answer, err := h.executor.Run(ctx, state, summarize, tool.Events{
		Stream:   streamFunc(ev),
		ToolDone: ev.OnToolDone,
	})
	state.Plan = nil
	switch {
	case errors.Is(err, tool.ErrLoopExceeded):
		// The executor already appended the loop-exceeded message.
		if err := emitChunk(ctx, ev, answer); err != nil {
			return Outcome{}, err
		}
		return Outcome{Answer: answer}, nil
	case err != nil:
		h.logger.Warn("plan execution failed", "session_id", state.SessionID, "error", err)
		state.Append(conversation.Message{Role: conversation.RoleAssistant, Content: chitchat.MsgApology})
		if err := emitChunk(ctx, ev, chitchat.MsgApology); err != nil {
			return Outcome{}, err
		}
		return Outcome{Answer: chitchat.MsgApology}, nil
	}
	return Outcome{Answer: answer}, nil
}

// confirmNames returns the plan's tools that need confirmation.
func (h *BusinessHandler) confirmNames(p *conversation.Plan) []string {
	var names []string
	for _, step := range p.Steps {
		if _, ok := h.confirm[step.AgentTool]; ok {
			names = append(names, step.AgentTool)
		}
	}
	return names
}

// RetrievalHandler answers informational questions from the document
// collection.
type RetrievalHandler struct {
	responder *retrieval.Responder
}

// NewRetrievalHandler creates a RetrievalHandler.
func NewRetrievalHandler(responder *retrieval.Responder) *RetrievalHandler {
	return &RetrievalHandler{responder: responder}
}

// Handle implements Handler.
func (h *RetrievalHandler) Handle(ctx context.Context, state *conversation.State, trimmed []conversation.Message, ev Events) (Outcome, error) {
	answer, err := h.responder.Respond(ctx, trimmed, streamFunc(ev))
	if err != nil {
		return Outcome{}, err
	}
	state.Append(conversation.Message{Role: conversation.RoleAssistant, Content: answer})
	return Outcome{Answer: answer}, nil
}

// ChitChatHandler serves the conversational fallback branch.
type ChitChatHandler struct {
	responder *chitchat.Responder
}

// NewChitChatHandler creates a ChitChatHandler.
func NewChitChatHandler(responder *chitchat.Responder) *ChitChatHandler {
	return &ChitChatHandler{responder: responder}
}

// Handle implements Handler.
func (h *ChitChatHandler) Handle(ctx context.Context, state *conversation.State, trimmed []conversation.Message, ev Events) (Outcome, error) {
	answer, err := h.responder.Respond(ctx, trimmed, streamFunc(ev))
	if err != nil {
		return Outcome{}, err
	}
	state.Append(conversation.Message{Role: conversation.RoleAssistant, Content: answer})
	return Outcome{Answer: answer}, nil
}

// streamFunc adapts the turn event sink to the generator stream shape.
func streamFunc(ev Events) llm.StreamFunc {
	if ev.OnChunk == nil {
		return nil
	}
	return llm.StreamFunc(ev.OnChunk)
}

func emitChunk(ctx context.Context, ev Events, text string) error {
	if ev.OnChunk == nil {
		return nil
	}
	if err := ev.OnChunk(ctx, text); err != nil {
		return fmt.Errorf("streaming reply: %w", err)
	}
	return nil
}
