package plan

import (
	"testing"

	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/intent"
)

func testMap() *intent.Map {
	return intent.NewMap(
		map[string]string{"uptime分析列表": "uptimeList"},
		map[string]string{"uptimeList": "uptime_report"},
	)
}

func TestBuild_EmptyKey(t *testing.T) {
	t.Parallel()

	out := Build(testMap(), "", "whatever")

	if !out.Terminal {
		t.Fatal("empty key must terminate the turn")
	}
	if out.Plan != nil {
		t.Error("empty key must not produce a plan")
	}
	if out.Message.Role != conversation.RoleSystem {
		t.Errorf("message role = %q, want system", out.Message.Role)
	}
	if out.Message.Content != MsgIntentNotRecognized {
		t.Errorf("message = %q, want %q", out.Message.Content, MsgIntentNotRecognized)
	}
}

func TestBuild_UnmappedKey(t *testing.T) {
	t.Parallel()

	out := Build(testMap(), "chargeStatistics", "统计充电量")

	if !out.Terminal {
		t.Fatal("unmapped key must terminate the turn")
	}
	if out.Message.Content != "暂不支持该意图: chargeStatistics" {
		t.Errorf("message = %q, want unsupported-intent text with the key", out.Message.Content)
	}
}

func TestBuild_SingleStepPlan(t *testing.T) {
	t.Parallel()

	out := Build(testMap(), "uptimeList", "查看本月uptime分析列表")

	if out.Terminal {
		t.Fatal("mapped key must not terminate the turn")
	}
	if out.Plan == nil || out.Plan.Type != PlanType {
		t.Fatalf("plan = %+v, want type %q", out.Plan, PlanType)
	}
	if len(out.Plan.Steps) != 1 {
		t.Fatalf("plan has %d steps, want 1", len(out.Plan.Steps))
	}

	step := out.Plan.Steps[0]
	if step.AgentTool != "uptime_report" {
		t.Errorf("step tool = %q, want uptime_report", step.AgentTool)
	}
	if step.Params["userText"] != "查看本月uptime分析列表" {
		t.Errorf("step params = %v, want userText passthrough", step.Params)
	}
	if !step.SummarizeAfter {
		t.Error("step must request summarization")
	}

	if out.Message.Role != conversation.RoleAssistant {
		t.Errorf("message role = %q, want assistant", out.Message.Role)
	}
	if len(out.Message.ToolCalls) != 1 {
		t.Fatalf("message carries %d tool calls, want 1", len(out.Message.ToolCalls))
	}
	if got := out.Message.ToolCalls[0].CallID; got != "call_1" {
		t.Errorf("call ID = %q, want call_1", got)
	}
}

func TestBuild_SequentialUniqueCallIDs(t *testing.T) {
	t.Parallel()

	out := Build(testMap(), "uptimeList", "uptime")

	seen := make(map[string]bool)
	for i, c := range out.Message.ToolCalls {
		if seen[c.CallID] {
			t.Errorf("duplicate call ID %q", c.CallID)
		}
		seen[c.CallID] = true
		if want := "call_" + string(rune('1'+i)); c.CallID != want {
			t.Errorf("call ID[%d] = %q, want %q", i, c.CallID, want)
		}
	}
}
