package chitchat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/llm"
)

type stubGenerator struct {
	text    string
	err     error
	gotMsgs []conversation.Message
}

func (s *stubGenerator) Generate(_ context.Context, msgs []conversation.Message, _ llm.StreamFunc) (*llm.Reply, error) {
	s.gotMsgs = msgs
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Reply{Text: s.text}, nil
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "short passes through", in: "你好！", want: "你好！"},
		{
			name: "exactly 100 runes unchanged",
			in:   strings.Repeat("好", 100),
			want: strings.Repeat("好", 100),
		},
		{
			name: "101 runes truncated",
			in:   strings.Repeat("好", 101),
			want: strings.Repeat("好", 100) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Truncate(tt.in); got != tt.want {
				t.Errorf("Truncate(%d runes) = %q", utf8.RuneCountInString(tt.in), got)
			}
		})
	}
}

func TestTruncate_LengthBound(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 99, 100, 101, 500, 10000} {
		got := Truncate(strings.Repeat("话", n))
		if c := utf8.RuneCountInString(got); c > 103 {
			t.Errorf("input %d runes: output %d runes exceeds 103", n, c)
		}
	}
}

func TestResponder_Reply(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{text: "今天深圳多云，记得带伞哦。"}
	r := NewResponder(gen, nil)

	var streamed strings.Builder
	answer, err := r.Respond(context.Background(),
		[]conversation.Message{{Role: conversation.RoleUser, Content: "今天天气怎么样"}},
		func(_ context.Context, d string) error {
			streamed.WriteString(d)
			return nil
		})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if answer != gen.text {
		t.Errorf("answer = %q", answer)
	}
	if streamed.String() != answer {
		t.Errorf("streamed = %q", streamed.String())
	}
	if gen.gotMsgs[0].Role != conversation.RoleSystem {
		t.Error("expected a leading system message")
	}
}

func TestResponder_HistoryWindow(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{text: "好的"}
	r := NewResponder(gen, nil)

	msgs := make([]conversation.Message, 25)
	for i := range msgs {
		msgs[i] = conversation.Message{Role: conversation.RoleUser, Content: strings.Repeat("m", i+1)}
	}
	if _, err := r.Respond(context.Background(), msgs, nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	// system prompt + last 10 history messages
	if len(gen.gotMsgs) != 11 {
		t.Fatalf("generator saw %d messages, want 11", len(gen.gotMsgs))
	}
	if gen.gotMsgs[1].Content != msgs[15].Content {
		t.Errorf("history window starts at %q, want %q", gen.gotMsgs[1].Content, msgs[15].Content)
	}
}

func TestResponder_FailureApology(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{err: errors.New("model unreachable")}
	r := NewResponder(gen, nil)

	answer, err := r.Respond(context.Background(),
		[]conversation.Message{{Role: conversation.RoleUser, Content: "你好"}}, nil)
	if err != nil {
		t.Fatalf("generation failure should degrade, got error %v", err)
	}
	if answer != MsgApology {
		t.Errorf("answer = %q, want fixed apology", answer)
	}
}
