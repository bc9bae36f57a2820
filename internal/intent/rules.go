package intent

import (
	"context"
	"strings"
)

// interrogativePrefixes are patterns that mark an information request even
// without a trailing question mark. Matching is case-insensitive for the
// Latin entries.
var interrogativePrefixes = []string{
	"what is",
	"how to",
	"how do",
	"where is",
	"什么是",
	"如何",
	"怎么",
	"怎样",
	"为什么",
}

// interrogativeSuffixes catch "X是什么" style questions and contact-info
// requests ("X的电话是什么").
var interrogativeSuffixes = []string{
	"是什么",
	"是多少",
	"怎么办",
	"怎么处理",
}

// Rules is a deterministic classifier implementing the three-way priority
// without a model call: an exact or containment match against the business
// phrase map wins, then the question heuristic, then chit-chat.
//
// Production deployments layer an LLM classifier on top (llm.Classifier)
// and fall back to Rules when the model is unreachable; tests run against
// Rules directly.
type Rules struct {
	intents *Map
}

// NewRules creates a rule-based classifier over the given intent map.
func NewRules(intents *Map) *Rules {
	return &Rules{intents: intents}
}

// Classify implements Classifier.
func (r *Rules) Classify(_ context.Context, text string) (*Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}

	// Priority 1: business phrase match. Exact match first, then
	// containment in either direction so "场站 深圳 查询场站信息" still
	// resolves to stationInfo.
	if key, ok := r.intents.KeyForPhrase(trimmed); ok {
		return &Result{
			IntentName: trimmed,
			IntentKey:  key,
			Confidence: 1.0,
			Reason:     "exact match against intent map",
		}, nil
	}
	for phrase, key := range r.intents.Phrases() {
		if strings.Contains(trimmed, phrase) || strings.Contains(phrase, trimmed) {
			return &Result{
				IntentName: phrase,
				IntentKey:  key,
				Confidence: 0.8,
				Reason:     "partial match against intent map",
			}, nil
		}
	}

	// Priority 2: question heuristic, regardless of domain.
	if isQuestion(trimmed) {
		return &Result{
			IntentName: KeyQuestion,
			IntentKey:  KeyQuestion,
			Confidence: 0.7,
			Reason:     "interrogative phrasing",
		}, nil
	}

	// Priority 3: greetings, small talk, non-interrogative statements.
	return &Result{
		IntentName: KeyChitChat,
		IntentKey:  KeyChitChat,
		Confidence: 0.6,
		Reason:     "no domain match and not phrased as a question",
	}, nil
}

func isQuestion(text string) bool {
	if strings.HasSuffix(text, "?") || strings.HasSuffix(text, "？") {
		return true
	}
	lower := strings.ToLower(text)
	for _, p := range interrogativePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, s := range interrogativeSuffixes {
		if strings.HasSuffix(text, s) {
			return true
		}
	}
	return false
}
