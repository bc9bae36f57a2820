package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/llm"
)

// Responder answers a question from retrieved passages only. When the
// retrieved set is empty, or retrieval or generation fails, it degrades
// to the fixed cannot-answer message instead of fabricating content.
type Responder struct {
	retriever Retriever
	gen       llm.Generator
	topK      int
	threshold float64
	logger    *slog.Logger
}

// NewResponder creates a Responder. topK <= 0 and threshold <= 0 select
// the defaults.
func NewResponder(retriever Retriever, gen llm.Generator, topK int, threshold float64, logger *slog.Logger) *Responder {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		retriever: retriever,
		gen:       gen,
		topK:      topK,
		threshold: threshold,
		logger:    logger,
	}
}

// Respond answers the newest user question in msgs. The reply is
// streamed through stream when non-nil and returned whole.
func (r *Responder) Respond(ctx context.Context, msgs []conversation.Message, stream llm.StreamFunc) (string, error) {
	query := lastUserText(msgs)
	if query == "" {
		return emit(ctx, stream, MsgCannotAnswer)
	}

	passages, err := r.retriever.Retrieve(ctx, query, r.topK, r.threshold)
	if err != nil {
		r.logger.Warn("retrieval failed", "error", err)
		return emit(ctx, stream, MsgCannotAnswer)
	}
	if len(passages) == 0 {
		return emit(ctx, stream, MsgCannotAnswer)
	}

	prompt := []conversation.Message{{
		Role:    conversation.RoleSystem,
		Content: groundedPrompt(passages),
	}}
	prompt = append(prompt, msgs...)

	reply, err := r.gen.Generate(ctx, prompt, stream)
	if err != nil {
		r.logger.Warn("grounded generation failed", "error", err)
		return emit(ctx, stream, MsgCannotAnswer)
	}
	return reply.Text, nil
}

// groundedPrompt renders the retrieved passages with provenance markers
// and pins the answer to that context.
func groundedPrompt(passages []Passage) string {
	var b strings.Builder
	b.WriteString("你是一个充电场站运营知识助手。请仅根据以下检索到的文档内容回答用户问题，")
	b.WriteString("并在引用时标明文档来源。如果文档内容不足以回答，请回复\"")
	b.WriteString(MsgCannotAnswer)
	b.WriteString("\"，不要编造信息。\n\n检索到的文档：\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "%d. [文档来源：%s]\n%s\n\n", i+1, p.Provenance, p.Text)
	}
	return b.String()
}

func lastUserText(msgs []conversation.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == conversation.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// emit streams a fixed message as a single chunk and returns it.
func emit(ctx context.Context, stream llm.StreamFunc, text string) (string, error) {
	if stream != nil {
		if err := stream(ctx, text); err != nil {
			return "", fmt.Errorf("streaming fixed reply: %w", err)
		}
	}
	return text, nil
}
