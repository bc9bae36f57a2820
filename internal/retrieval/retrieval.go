// Package retrieval answers informational questions from the indexed
// document collection, grounded strictly in retrieved passages.
package retrieval

import "context"

// Defaults for passage search.
const (
	DefaultTopK           = 6
	DefaultScoreThreshold = 0.3
)

// MsgCannotAnswer is returned when no passage clears the score threshold.
const MsgCannotAnswer = "无法回答该问题"

// Passage is one retrieved chunk. Score is normalized to [0,1] with 1
// meaning most relevant.
type Passage struct {
	Text       string
	Provenance string
	Score      float64
}

// Retriever ranks stored passages against a query. Implementations
// return at most k passages with score >= scoreThreshold, most relevant
// first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, scoreThreshold float64) ([]Passage, error)
}
