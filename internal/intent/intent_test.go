package intent

import (
	"context"
	"testing"
)

func TestRoute_Total(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want Branch
	}{
		{key: "", want: BranchChitChat},
		{key: "chit_chat", want: BranchChitChat},
		{key: "question", want: BranchRetrieval},
		{key: "uptimeList", want: BranchBusiness},
		{key: "stationInfo", want: BranchBusiness},
		{key: "anything-else", want: BranchBusiness},
		{key: "   ", want: BranchBusiness}, // whitespace is a non-empty key
	}

	for _, tt := range tests {
		t.Run("key="+tt.key, func(t *testing.T) {
			t.Parallel()

			if got := Route(tt.key); got != tt.want {
				t.Errorf("Route(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestRules_Priority(t *testing.T) {
	t.Parallel()

	intents := NewMap(
		map[string]string{
			"uptime分析列表":  "uptimeList",
			"查询场站信息":     "stationInfo",
			"通信故障怎么处理":   "commFault",
		},
		map[string]string{"uptimeList": "uptime_report"},
	)
	rules := NewRules(intents)

	tests := []struct {
		name    string
		text    string
		wantKey string
	}{
		{name: "exact business phrase", text: "uptime分析列表", wantKey: "uptimeList"},
		{name: "phrase inside longer input", text: "场站 深圳场站 查询场站信息", wantKey: "stationInfo"},
		{name: "domain plus interrogative prefers business", text: "设备显示008通信故障怎么处理？", wantKey: "commFault"},
		{name: "question mark", text: "Autel Europe UK Ltd的电话是什么？", wantKey: "question"},
		{name: "fullwidth question mark", text: "地址在哪里？", wantKey: "question"},
		{name: "english interrogative prefix", text: "what is a charging station", wantKey: "question"},
		{name: "non-interrogative chit chat", text: "今天天气怎么样", wantKey: "chit_chat"},
		{name: "greeting", text: "你好", wantKey: "chit_chat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := rules.Classify(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Classify(%q) error: %v", tt.text, err)
			}
			if got.IntentKey != tt.wantKey {
				t.Errorf("Classify(%q).IntentKey = %q, want %q", tt.text, got.IntentKey, tt.wantKey)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("Classify(%q) violated contract: %v", tt.text, err)
			}
		})
	}
}

func TestRules_EmptyInput(t *testing.T) {
	t.Parallel()

	rules := NewRules(DefaultMap())
	if _, err := rules.Classify(context.Background(), "  "); err == nil {
		t.Fatal("expected ErrEmptyInput for blank text")
	}
}

func TestResult_Normalize(t *testing.T) {
	t.Parallel()

	r := &Result{Confidence: 1.7}
	r.Normalize()
	if r.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", r.Confidence)
	}
	if r.IntentKey != KeyChitChat {
		t.Errorf("IntentKey = %q, want default chit_chat", r.IntentKey)
	}

	r = &Result{IntentKey: "uptimeList", Confidence: -0.2}
	r.Normalize()
	if r.Confidence != 0 {
		t.Errorf("Confidence = %v, want clamped to 0", r.Confidence)
	}
	if r.IntentName != "uptimeList" {
		t.Errorf("IntentName = %q, want backfilled from key", r.IntentName)
	}
}
