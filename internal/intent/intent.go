// Package intent classifies user turns and routes them to a handling
// branch. A turn is either a business operation (matched against a
// configured phrase map), an informational question, or chit-chat.
package intent

import (
	"context"
	"errors"
	"fmt"
)

// Canonical non-business intent keys.
const (
	KeyQuestion = "question"
	KeyChitChat = "chit_chat"
)

// ErrEmptyInput indicates there was no user text to classify.
var ErrEmptyInput = errors.New("no user input to classify")

// Result is the outcome of classifying one user turn. It is produced fresh
// each turn and not persisted beyond the turn's derived state fields.
type Result struct {
	IntentName string  `json:"intent_name" jsonschema_description:"Human-readable intent name; the matched domain phrase for business intents, or question/chit_chat"`
	IntentKey  string  `json:"intent_key" jsonschema_description:"Canonical intent key; a business key from the provided mapping, or question/chit_chat"`
	Confidence float64 `json:"confidence" jsonschema_description:"Classification confidence between 0 and 1"`
	Reason     string  `json:"reason" jsonschema_description:"Short justification for the classification"`
}

// Normalize clamps the confidence into [0,1] and defaults an empty key to
// chit_chat so downstream routing always receives a usable result.
func (r *Result) Normalize() {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	if r.IntentKey == "" {
		r.IntentKey = KeyChitChat
	}
	if r.IntentName == "" {
		r.IntentName = r.IntentKey
	}
}

// Validate reports whether the result satisfies the classifier contract.
func (r *Result) Validate() error {
	if r.IntentKey == "" {
		return errors.New("intent_key is empty")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	return nil
}

// Classifier maps the most recent user text to a Result.
//
// Classification is inherently probabilistic (production classifiers are
// backed by a language model); the contract fixes only the result shape and
// the three-way priority: business phrase match, then question heuristic,
// then chit-chat.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Result, error)
}

// Map is the static intent configuration: free-text intent phrase to
// canonical key, and canonical key to the tool that serves it. It is
// read-only after initialization and safe for unsynchronized concurrent
// reads.
type Map struct {
	phraseToKey map[string]string
	keyToTool   map[string]string
}

// NewMap builds an immutable intent map from the two mappings. The inputs
// are copied; later mutation of the arguments does not affect the map.
func NewMap(phraseToKey, keyToTool map[string]string) *Map {
	m := &Map{
		phraseToKey: make(map[string]string, len(phraseToKey)),
		keyToTool:   make(map[string]string, len(keyToTool)),
	}
	for phrase, key := range phraseToKey {
		m.phraseToKey[phrase] = key
	}
	for key, tool := range keyToTool {
		m.keyToTool[key] = tool
	}
	return m
}

// DefaultMap returns the built-in fleet-operations intents.
func DefaultMap() *Map {
	return NewMap(
		map[string]string{
			"uptime分析列表": "uptimeList",
			"查询场站信息":    "stationInfo",
		},
		map[string]string{
			"uptimeList":  "uptime_report",
			"stationInfo": "station_info",
		},
	)
}

// KeyForPhrase returns the canonical key for an exact phrase match.
func (m *Map) KeyForPhrase(phrase string) (string, bool) {
	key, ok := m.phraseToKey[phrase]
	return key, ok
}

// ToolForKey returns the tool name serving a business intent key.
func (m *Map) ToolForKey(key string) (string, bool) {
	tool, ok := m.keyToTool[key]
	return tool, ok
}

// Phrases returns a copy of the phrase-to-key mapping, for prompt building.
func (m *Map) Phrases() map[string]string {
	out := make(map[string]string, len(m.phraseToKey))
	for p, k := range m.phraseToKey {
		out[p] = k
	}
	return out
}
