// Package plan maps a classified business intent to a tool invocation
// plan. The planner either emits a Plan plus the assistant message that
// carries its tool calls, or a terminal system message when the intent
// cannot be served.
package plan

import (
	"fmt"
	"strings"

	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/intent"
)

// PlanType is the type tag carried by planner-built plans.
const PlanType = "plan"

// User-visible terminal messages for unplannable intents.
const (
	MsgIntentNotRecognized = "无法识别用户意图"
	msgIntentNotSupported  = "暂不支持该意图: %s"
)

// Outcome is the planner's result for one turn. Exactly one of Plan or a
// terminal Message is meaningful: when Plan is nil the Message is a system
// message that ends the turn; otherwise the Message is the assistant
// message carrying the plan's tool calls.
type Outcome struct {
	Plan    *conversation.Plan
	Message conversation.Message

	// Terminal is true when the turn must end without tool execution.
	Terminal bool
}

// Build constructs the tool plan for a business intent key.
//
// An empty key terminates the turn with "intent not recognized"; a key
// absent from the intent map terminates with "intent not supported". Every
// other key yields a single-step plan invoking the mapped tool with the
// user's text, summarized after execution. Call IDs are assigned
// sequentially starting at 1 and are unique within the turn.
func Build(intents *intent.Map, intentKey, userText string) Outcome {
	if intentKey == "" {
		return Outcome{
			Message:  conversation.Message{Role: conversation.RoleSystem, Content: MsgIntentNotRecognized},
			Terminal: true,
		}
	}

	tool, ok := intents.ToolForKey(intentKey)
	if !ok {
		return Outcome{
			Message: conversation.Message{
				Role:    conversation.RoleSystem,
				Content: fmt.Sprintf(msgIntentNotSupported, intentKey),
			},
			Terminal: true,
		}
	}

	p := &conversation.Plan{
		Type: PlanType,
		Steps: []conversation.Step{{
			AgentTool:      tool,
			Params:         map[string]any{"userText": userText},
			SummarizeAfter: true,
		}},
	}

	return Outcome{Plan: p, Message: CallsMessage(p)}
}

// CallsMessage builds the assistant message carrying p's tool calls, one
// ToolCall per step with sequential call IDs. Used both when a plan is
// first built and when a suspended plan is resumed.
func CallsMessage(p *conversation.Plan) conversation.Message {
	calls := make([]conversation.ToolCall, 0, len(p.Steps))
	names := make([]string, 0, len(p.Steps))
	for i, step := range p.Steps {
		calls = append(calls, conversation.ToolCall{
			Name:      step.AgentTool,
			Arguments: step.Params,
			CallID:    fmt.Sprintf("call_%d", i+1),
		})
		names = append(names, step.AgentTool)
	}
	return conversation.Message{
		Role:      conversation.RoleAssistant,
		Content:   "调用工具：" + strings.Join(names, ","),
		ToolCalls: calls,
	}
}
