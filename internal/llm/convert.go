package llm

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/stationmind/stationmind/internal/conversation"
)

// toAIMessages converts conversation history into the Genkit wire shape.
// Tool calls ride on model messages as tool-request parts; tool results
// become tool-role messages carrying a tool-response part keyed by the
// originating call ID.
func toAIMessages(msgs []conversation.Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case conversation.RoleSystem:
			out = append(out, ai.NewSystemMessage(ai.NewTextPart(m.Content)))
		case conversation.RoleUser:
			out = append(out, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case conversation.RoleAssistant:
			parts := make([]*ai.Part, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				parts = append(parts, ai.NewTextPart(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &ai.Part{
					Kind: ai.PartToolRequest,
					ToolRequest: &ai.ToolRequest{
						Name:  tc.Name,
						Ref:   tc.CallID,
						Input: tc.Arguments,
					},
				})
			}
			out = append(out, ai.NewModelMessage(parts...))
		case conversation.RoleTool:
			out = append(out, &ai.Message{
				Role: ai.RoleTool,
				Content: []*ai.Part{{
					Kind: ai.PartToolResponse,
					ToolResponse: &ai.ToolResponse{
						Ref:    m.CallID,
						Output: m.Content,
					},
				}},
			})
		}
	}
	return out
}

// fromToolRequests maps Genkit tool requests onto conversation tool calls.
// Requests without a ref get sequential IDs so results can still be matched.
func fromToolRequests(reqs []*ai.ToolRequest) []conversation.ToolCall {
	if len(reqs) == 0 {
		return nil
	}
	calls := make([]conversation.ToolCall, 0, len(reqs))
	for i, req := range reqs {
		if req == nil {
			continue
		}
		id := req.Ref
		if id == "" {
			id = fmt.Sprintf("call_%d", i+1)
		}
		args, _ := req.Input.(map[string]any)
		calls = append(calls, conversation.ToolCall{
			Name:      req.Name,
			Arguments: args,
			CallID:    id,
		})
	}
	return calls
}
