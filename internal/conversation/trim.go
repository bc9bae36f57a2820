package conversation

import (
	"log/slog"
	"unicode/utf8"
)

// TrimLimits bounds the view produced by Trim.
type TrimLimits struct {
	MaxMessages int // most-recent messages considered; <=0 means no count bound
	MaxTokens   int // approximate token budget; <=0 means no token bound

	// IncludeSystem retains system-role messages regardless of position.
	IncludeSystem bool
}

// DefaultTrimLimits mirrors the production context window: the last 15
// messages bounded to roughly 16K tokens, system prompt retained.
func DefaultTrimLimits() TrimLimits {
	return TrimLimits{
		MaxMessages:   15,
		MaxTokens:     16384,
		IncludeSystem: true,
	}
}

// EstimateTokens provides a rough token count: rune count divided by 2.
// A conservative estimate that works for both English (~4 chars/token)
// and CJK (~1.5 chars/token) text.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 2
}

// estimateMessageTokens estimates tokens for a single message, including
// tool-call payload names.
func estimateMessageTokens(m Message) int {
	total := EstimateTokens(m.Content)
	for _, c := range m.ToolCalls {
		total += EstimateTokens(c.Name)
	}
	return total
}

func estimateTotal(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += estimateMessageTokens(m)
	}
	return total
}

// Trim returns a bounded view of the conversation log. The persisted log is
// never mutated; the returned slice holds the same Message values.
//
// Guarantees:
//   - at most limits.MaxMessages most-recent messages are considered;
//   - the approximate token total of the view is within limits.MaxTokens;
//   - the view starts on a user message and ends on a user or tool message
//     (system messages retained when IncludeSystem is set do not count
//     against the start constraint);
//   - messages are dropped from the oldest end only, and the single most
//     recent message is never dropped: if it alone exceeds the budget the
//     view is that one message, best effort.
func Trim(msgs []Message, limits TrimLimits) []Message {
	if len(msgs) == 0 {
		return nil
	}

	// Count bound first; retained system messages survive it.
	var retained []Message
	view := msgs
	if limits.MaxMessages > 0 && len(view) > limits.MaxMessages {
		if limits.IncludeSystem {
			for _, m := range view[:len(view)-limits.MaxMessages] {
				if m.Role == RoleSystem {
					retained = append(retained, m)
				}
			}
		}
		view = view[len(view)-limits.MaxMessages:]
	}

	// End constraint: the view must end on a user or tool message. The most
	// recent message is exempt so a lone assistant reply is still returned.
	for len(view) > 1 {
		last := view[len(view)-1]
		if last.Role == RoleUser || last.Role == RoleTool {
			break
		}
		view = view[:len(view)-1]
	}

	// Drop from the oldest end until the view starts on a user message and
	// fits the token budget.
	budget := limits.MaxTokens
	for len(view) > 1 {
		over := budget > 0 && estimateTotal(view)+estimateTotal(retained) > budget
		head := view[0]
		badStart := head.Role != RoleUser && !(head.Role == RoleSystem && limits.IncludeSystem)
		if !over && !badStart {
			break
		}
		if head.Role == RoleSystem && limits.IncludeSystem && over {
			// Budget pressure trumps system retention only when nothing
			// else is left to drop; skip past it otherwise.
			if dropped := dropFirstNonSystem(view); dropped != nil {
				view = dropped
				continue
			}
		}
		view = view[1:]
	}

	if len(retained) > 0 {
		out := make([]Message, 0, len(retained)+len(view))
		out = append(out, retained...)
		out = append(out, view...)
		return out
	}
	return view
}

// dropFirstNonSystem removes the oldest non-system message, returning nil
// when the view holds only system messages plus the final message.
func dropFirstNonSystem(view []Message) []Message {
	for i := 0; i < len(view)-1; i++ {
		if view[i].Role != RoleSystem {
			out := make([]Message, 0, len(view)-1)
			out = append(out, view[:i]...)
			out = append(out, view[i+1:]...)
			return out
		}
	}
	return nil
}

// LogTrim emits a debug record when trimming changed the view size.
func LogTrim(logger *slog.Logger, before, after int) {
	if logger != nil && after < before {
		logger.Debug("trimmed conversation history",
			"original_count", before,
			"trimmed_count", after,
		)
	}
}
