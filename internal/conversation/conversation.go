// Package conversation defines the per-session conversation data model:
// messages, tool calls, the execution plan, and the session state that the
// orchestrator threads through a turn and the session store persists
// between turns.
package conversation

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

// Valid message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ToolCall is a single tool invocation requested by an assistant message.
// CallID is unique within a turn; tool-result messages reference it.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	CallID    string         `json:"call_id"`
}

// Clone returns a deep copy of the tool call. Arguments maps are copied one
// level deep, which is sufficient because argument values are JSON scalars
// or freshly unmarshaled containers that no other goroutine mutates.
func (c ToolCall) Clone() ToolCall {
	cp := ToolCall{Name: c.Name, CallID: c.CallID}
	if c.Arguments != nil {
		cp.Arguments = make(map[string]any, len(c.Arguments))
		for k, v := range c.Arguments {
			cp.Arguments[k] = v
		}
	}
	return cp
}

// Message is one entry in a session's conversation log.
//
// Invariant: a RoleTool message must carry a CallID previously issued by a
// RoleAssistant message in the same log.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// CallID links a tool-result message back to the assistant tool call
	// that produced it. Empty for non-tool messages.
	CallID string `json:"call_id,omitempty"`
}

// Step is a single planned tool invocation.
type Step struct {
	AgentTool      string         `json:"agent_tool"`
	Params         map[string]any `json:"params,omitempty"`
	SummarizeAfter bool           `json:"summarize_after"`
}

// Plan is an ordered list of tool invocations derived from a business
// intent. It is created by the planner, consumed by the tool executor, and
// not retained after the turn completes (unless the turn is interrupted,
// in which case the pending plan travels with the interrupt record).
type Plan struct {
	Type  string `json:"type"`
	Steps []Step `json:"steps"`
}

// State is the conversation state for one session. It is owned by the
// session store and mutated only by the orchestrator between turns.
//
// The message log is append-only: trimming produces a bounded view, it
// never rewrites the persisted log.
type State struct {
	SessionID  string     `json:"session_id"`
	Messages   []Message  `json:"messages"`
	IntentName string     `json:"intent_name,omitempty"`
	IntentKey  string     `json:"intent_key,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Plan       *Plan      `json:"plan,omitempty"`
	AuthToken  string     `json:"auth_token,omitempty"`
}

// NewState creates an empty conversation state for the given session.
func NewState(sessionID string) *State {
	return &State{
		SessionID: sessionID,
		Messages:  make([]Message, 0),
	}
}

// Append adds messages to the end of the log.
func (s *State) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
}

// LastMessage returns the newest message, or nil if the log is empty.
func (s *State) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// LastUserInput returns the content of the newest user-role message,
// or "" if the log holds none.
func (s *State) LastUserInput() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Clone returns a deep copy of the state. The store hands out clones so
// concurrent readers never observe a state the orchestrator is mutating.
func (s *State) Clone() *State {
	cp := &State{
		SessionID:  s.SessionID,
		IntentName: s.IntentName,
		IntentKey:  s.IntentKey,
		Confidence: s.Confidence,
		AuthToken:  s.AuthToken,
	}
	cp.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		cp.Messages[i] = m
		if len(m.ToolCalls) > 0 {
			calls := make([]ToolCall, len(m.ToolCalls))
			for j, c := range m.ToolCalls {
				calls[j] = c.Clone()
			}
			cp.Messages[i].ToolCalls = calls
		}
	}
	if s.Plan != nil {
		p := Plan{Type: s.Plan.Type, Steps: make([]Step, len(s.Plan.Steps))}
		copy(p.Steps, s.Plan.Steps)
		cp.Plan = &p
	}
	return cp
}

// Validate checks the tool-result referencing invariant: every RoleTool
// message must reference a call ID issued by an earlier assistant message.
func (s *State) Validate() error {
	issued := make(map[string]bool)
	for i, m := range s.Messages {
		switch m.Role {
		case RoleAssistant:
			for _, c := range m.ToolCalls {
				issued[c.CallID] = true
			}
		case RoleTool:
			if m.CallID == "" {
				return fmt.Errorf("message %d: tool result without call_id", i)
			}
			if !issued[m.CallID] {
				return fmt.Errorf("message %d: tool result references unknown call_id %q", i, m.CallID)
			}
		}
	}
	return nil
}

// MarshalPlan serializes a plan for persistence. Nil plans serialize to nil.
func MarshalPlan(p *Plan) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// UnmarshalPlan deserializes a plan produced by MarshalPlan.
func UnmarshalPlan(data []byte) (*Plan, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling plan: %w", err)
	}
	return &p, nil
}
