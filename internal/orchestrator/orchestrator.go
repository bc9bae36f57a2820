// Package orchestrator wires classification, routing, planning, tool
// execution, retrieval, and chit-chat into the turn-processing loop.
// One turn flows Classify -> Route -> {Plan+ExecuteTools | Retrieve |
// ChitChat} -> Done, with Interrupted as the suspension point for plans
// that need external confirmation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/intent"
	"github.com/stationmind/stationmind/internal/session"
)

// MarkerToolDone is the distinguished chunk surfacing a tool completion
// in the output stream.
const MarkerToolDone = "\n工具执行完成\n"

// MsgClarify asks the user to rephrase when no usable text arrived.
const MsgClarify = "请问您想咨询什么？"

// MsgCanceled confirms a declined plan.
const MsgCanceled = "好的，已取消本次操作。"

// ErrStore marks session persistence failures. These propagate to the
// transport layer as hard failures; everything else degrades to a polite
// in-conversation message.
var ErrStore = errors.New("session store failure")

// DefaultTurnTimeout bounds one whole turn.
const DefaultTurnTimeout = 5 * time.Minute

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	SessionID string
	UserInput string
	AuthToken string
}

// Events receives the turn's output stream. Either field may be nil.
type Events struct {
	// OnChunk receives answer text increments in order of production.
	OnChunk func(ctx context.Context, chunk string) error
	// OnToolDone fires when a batch of tool calls completes.
	OnToolDone func(ctx context.Context) error
}

// Result is the completed turn.
type Result struct {
	SessionID   string
	UserInput   string
	Answer      string
	Interrupted bool
}

// Outcome is a branch handler's verdict for one turn.
type Outcome struct {
	Answer string
	// Interrupt, when non-nil, suspends the session awaiting external
	// confirmation; Answer carries the confirmation prompt.
	Interrupt *session.Interrupt
}

// Handler serves one routing branch.
type Handler interface {
	Handle(ctx context.Context, state *conversation.State, trimmed []conversation.Message, ev Events) (Outcome, error)
}

// Config holds Orchestrator construction parameters.
type Config struct {
	Classifier intent.Classifier
	Store      session.Store
	Handlers   map[intent.Branch]Handler
	TrimLimits conversation.TrimLimits
	// TurnTimeout bounds one whole turn. Zero means DefaultTurnTimeout.
	TurnTimeout time.Duration
	Logger      *slog.Logger
}

// Orchestrator is the top-level turn state machine. Distinct sessions
// are processed concurrently; turns within one session are strictly
// sequential.
type Orchestrator struct {
	classifier  intent.Classifier
	store       session.Store
	handlers    map[intent.Branch]Handler
	trimLimits  conversation.TrimLimits
	turnTimeout time.Duration
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}
	for _, b := range []intent.Branch{intent.BranchBusiness, intent.BranchRetrieval, intent.BranchChitChat} {
		if cfg.Handlers[b] == nil {
			return nil, fmt.Errorf("handler for branch %s is required", b)
		}
	}

	limits := cfg.TrimLimits
	if limits.MaxMessages == 0 && limits.MaxTokens == 0 {
		limits = conversation.DefaultTrimLimits()
	}
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		classifier:  cfg.Classifier,
		store:       cfg.Store,
		handlers:    cfg.Handlers,
		trimLimits:  limits,
		turnTimeout: timeout,
		logger:      logger,
		locks:       make(map[string]*sync.Mutex),
	}, nil
}

// sessionLock returns the mutex serializing turns for sessionID.
func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[sessionID] = lock
	}
	return lock
}

// ProcessTurn runs one user turn to completion or suspension. A turn for
// a suspended session is routed through the resume path instead of fresh
// classification. Session store failures are returned wrapped in
// ErrStore; all other failures degrade to an in-conversation message.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest, ev Events) (*Result, error) {
	lock := o.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	intr, err := o.store.PendingInterrupt(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: checking interrupt: %w", ErrStore, err)
	}
	if intr != nil {
		return o.resumeTurn(ctx, req, intr, ev)
	}
	return o.newTurn(ctx, req, ev)
}

// newTurn is the fresh-classification path.
func (o *Orchestrator) newTurn(ctx context.Context, req TurnRequest, ev Events) (*Result, error) {
	state, err := o.store.Load(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading session: %w", ErrStore, err)
	}
	if req.AuthToken != "" {
		state.AuthToken = req.AuthToken
	}
	state.Append(conversation.Message{Role: conversation.RoleUser, Content: req.UserInput})

	if strings.TrimSpace(req.UserInput) == "" {
		return o.finishFixed(ctx, req, state, MsgClarify, ev)
	}

	trimmed := conversation.Trim(state.Messages, o.trimLimits)

	result, err := o.classifier.Classify(ctx, req.UserInput)
	if err != nil {
		if errors.Is(err, intent.ErrEmptyInput) {
			return o.finishFixed(ctx, req, state, MsgClarify, ev)
		}
		// Classification never kills a turn; fall back to chit-chat.
		o.logger.Warn("classification failed, routing to chit-chat",
			"session_id", req.SessionID, "error", err)
		result = &intent.Result{IntentKey: intent.KeyChitChat, Confidence: 0}
	}
	state.IntentName = result.IntentName
	state.IntentKey = result.IntentKey
	state.Confidence = result.Confidence

	branch := intent.Route(result.IntentKey)
	o.logger.Debug("routed turn",
		"session_id", req.SessionID,
		"intent_key", result.IntentKey,
		"confidence", result.Confidence,
		"branch", branch,
	)

	outcome, err := o.handlers[branch].Handle(ctx, state, trimmed, ev)
	if err != nil {
		return nil, err
	}

	if outcome.Interrupt != nil {
		if err := o.store.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("%w: saving session: %w", ErrStore, err)
		}
		if err := o.store.SetInterrupt(ctx, req.SessionID, outcome.Interrupt); err != nil {
			return nil, fmt.Errorf("%w: suspending session: %w", ErrStore, err)
		}
		return &Result{
			SessionID:   req.SessionID,
			UserInput:   req.UserInput,
			Answer:      outcome.Answer,
			Interrupted: true,
		}, nil
	}

	if err := o.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("%w: saving session: %w", ErrStore, err)
	}
	return &Result{SessionID: req.SessionID, UserInput: req.UserInput, Answer: outcome.Answer}, nil
}

// resumeTurn reenters a suspended session. An affirmative input executes
// the suspended plan; anything else cancels it. Either way the interrupt
// is cleared, so reentry happens at most once per suspension.
func (o *Orchestrator) resumeTurn(ctx context.Context, req TurnRequest, intr *session.Interrupt, ev Events) (*Result, error) {
	state, err := o.store.Load(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading session: %w", ErrStore, err)
	}
	if req.AuthToken != "" {
		state.AuthToken = req.AuthToken
	}
	state.Append(conversation.Message{Role: conversation.RoleUser, Content: req.UserInput})

	if err := o.store.ClearInterrupt(ctx, req.SessionID); err != nil {
		return nil, fmt.Errorf("%w: clearing interrupt: %w", ErrStore, err)
	}

	if !isAffirmative(req.UserInput) {
		state.Plan = nil
		return o.finishFixed(ctx, req, state, MsgCanceled, ev)
	}

	resumer, ok := o.handlers[intent.BranchBusiness].(interrupted)
	if !ok {
		return nil, errors.New("business handler cannot resume interrupted plans")
	}
	outcome, err := resumer.Resume(ctx, state, intr, ev)
	if err != nil {
		return nil, err
	}
	if err := o.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("%w: saving session: %w", ErrStore, err)
	}
	return &Result{SessionID: req.SessionID, UserInput: req.UserInput, Answer: outcome.Answer}, nil
}

// interrupted is the extra capability the business handler exposes for
// continuing a suspended plan.
type interrupted interface {
	Resume(ctx context.Context, state *conversation.State, intr *session.Interrupt, ev Events) (Outcome, error)
}

// finishFixed ends the turn with a fixed message.
func (o *Orchestrator) finishFixed(ctx context.Context, req TurnRequest, state *conversation.State, text string, ev Events) (*Result, error) {
	state.Append(conversation.Message{Role: conversation.RoleAssistant, Content: text})
	if ev.OnChunk != nil {
		if err := ev.OnChunk(ctx, text); err != nil {
			return nil, fmt.Errorf("streaming reply: %w", err)
		}
	}
	if err := o.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("%w: saving session: %w", ErrStore, err)
	}
	return &Result{SessionID: req.SessionID, UserInput: req.UserInput, Answer: text}, nil
}

// affirmations accepted as plan confirmation on resume.
var affirmations = map[string]struct{}{
	"是": {}, "是的": {}, "好": {}, "好的": {}, "确认": {}, "继续": {}, "执行": {},
	"yes": {}, "y": {}, "ok": {}, "confirm": {},
}

func isAffirmative(text string) bool {
	_, ok := affirmations[strings.ToLower(strings.TrimSpace(text))]
	return ok
}
