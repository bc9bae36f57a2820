package llm

import (
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/intent"
)

func TestToAIMessages(t *testing.T) {
	t.Parallel()

	msgs := []conversation.Message{
		{Role: conversation.RoleSystem, Content: "be helpful"},
		{Role: conversation.RoleUser, Content: "check station S-1"},
		{
			Role:    conversation.RoleAssistant,
			Content: "调用工具：station_info",
			ToolCalls: []conversation.ToolCall{{
				Name:      "station_info",
				Arguments: map[string]any{"userText": "check station S-1"},
				CallID:    "call_1",
			}},
		},
		{Role: conversation.RoleTool, Content: `{"status":"online"}`, CallID: "call_1"},
	}

	got := toAIMessages(msgs)
	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}

	if got[0].Role != ai.RoleSystem {
		t.Errorf("message 0 role = %v, want system", got[0].Role)
	}
	if got[1].Role != ai.RoleUser {
		t.Errorf("message 1 role = %v, want user", got[1].Role)
	}

	if got[2].Role != ai.RoleModel {
		t.Errorf("message 2 role = %v, want model", got[2].Role)
	}
	if len(got[2].Content) != 2 {
		t.Fatalf("model message should carry text + tool request, got %d parts", len(got[2].Content))
	}
	req := got[2].Content[1].ToolRequest
	if req == nil || req.Name != "station_info" || req.Ref != "call_1" {
		t.Errorf("unexpected tool request part: %+v", req)
	}

	if got[3].Role != ai.RoleTool {
		t.Errorf("message 3 role = %v, want tool", got[3].Role)
	}
	resp := got[3].Content[0].ToolResponse
	if resp == nil || resp.Ref != "call_1" {
		t.Errorf("tool response should reference call_1, got %+v", resp)
	}
}

func TestToAIMessages_SkipsEmptyAssistantText(t *testing.T) {
	t.Parallel()

	msgs := []conversation.Message{{
		Role: conversation.RoleAssistant,
		ToolCalls: []conversation.ToolCall{
			{Name: "uptime_report", CallID: "call_1"},
		},
	}}

	got := toAIMessages(msgs)
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if len(got[0].Content) != 1 {
		t.Fatalf("empty assistant text should produce a single tool-request part, got %d parts", len(got[0].Content))
	}
}

func TestFromToolRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reqs    []*ai.ToolRequest
		wantLen int
		wantIDs []string
	}{
		{
			name:    "empty",
			reqs:    nil,
			wantLen: 0,
		},
		{
			name: "refs preserved",
			reqs: []*ai.ToolRequest{
				{Name: "station_info", Ref: "call_7", Input: map[string]any{"userText": "x"}},
			},
			wantLen: 1,
			wantIDs: []string{"call_7"},
		},
		{
			name: "missing refs get sequential ids",
			reqs: []*ai.ToolRequest{
				{Name: "uptime_report"},
				{Name: "station_info"},
			},
			wantLen: 2,
			wantIDs: []string{"call_1", "call_2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := fromToolRequests(tt.reqs)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			for i, id := range tt.wantIDs {
				if got[i].CallID != id {
					t.Errorf("call %d id = %q, want %q", i, got[i].CallID, id)
				}
			}
		})
	}
}

func TestClassifierSystemPrompt(t *testing.T) {
	t.Parallel()

	prompt := classifierSystemPrompt(intent.DefaultMap())

	for _, want := range []string{"uptime分析列表", "查询场站信息", "question", "chit_chat"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
