// Package chitchat produces the generic conversational fallback for
// inputs that are neither business operations nor informational
// questions.
package chitchat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/llm"
)

// MsgApology replaces the reply when generation fails.
const MsgApology = "抱歉，我无法回答这个问题。"

const (
	// historyWindow is how many recent messages feed the reply.
	historyWindow = 10
	// maxReplyRunes caps the reply length before the ellipsis marker.
	maxReplyRunes = 100
)

const systemPrompt = "你是充电场站运营平台的智能助手。请用简短友好的语气回复用户的日常对话，不要长篇大论。"

// Responder generates short conversational replies. Generation failures
// degrade to a fixed apology instead of propagating.
type Responder struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewResponder creates a Responder.
func NewResponder(gen llm.Generator, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{gen: gen, logger: logger}
}

// Respond replies to the conversation in msgs, considering at most the
// last 10 messages. Replies longer than 100 characters are truncated
// with an ellipsis marker. The final reply is streamed through stream
// when non-nil.
func (r *Responder) Respond(ctx context.Context, msgs []conversation.Message, stream llm.StreamFunc) (string, error) {
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	prompt := make([]conversation.Message, 0, 1+len(msgs))
	prompt = append(prompt, conversation.Message{Role: conversation.RoleSystem, Content: systemPrompt})
	prompt = append(prompt, msgs...)

	// The reply is capped after generation, so stream only the final
	// text, not the raw model chunks.
	reply, err := r.gen.Generate(ctx, prompt, nil)
	text := MsgApology
	if err != nil {
		r.logger.Warn("chit-chat generation failed", "error", err)
	} else {
		text = Truncate(reply.Text)
	}

	if stream != nil {
		if err := stream(ctx, text); err != nil {
			return "", fmt.Errorf("streaming reply: %w", err)
		}
	}
	return text, nil
}

// Truncate caps text at 100 characters, appending "..." when it was cut.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxReplyRunes {
		return text
	}
	return string(runes[:maxReplyRunes]) + "..."
}
