// Package session persists per-session conversation state and the
// suspend/resume protocol around it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/stationmind/stationmind/internal/conversation"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Interrupt suspends a turn pending external confirmation. It carries
// everything needed to continue from the suspension point.
type Interrupt struct {
	// Prompt is the confirmation question shown to the user.
	Prompt string `json:"prompt"`
	// Plan is the suspended tool plan awaiting approval.
	Plan *conversation.Plan `json:"plan,omitempty"`
	// UserInput is the original input that produced the plan.
	UserInput string `json:"user_input"`
	CreatedAt time.Time `json:"created_at"`
}

// Info summarizes one stored session for listings.
type Info struct {
	SessionID    string
	MessageCount int
	UpdatedAt    time.Time
}

// Store holds conversation state keyed by session ID. Implementations
// must be safe for concurrent use across distinct sessions; callers
// serialize access within one session.
type Store interface {
	// Load returns the state for sessionID, creating an empty state if
	// the session does not exist yet.
	Load(ctx context.Context, sessionID string) (*conversation.State, error)

	// Save checkpoints state under its session ID.
	Save(ctx context.Context, state *conversation.State) error

	// PendingInterrupt returns the session's pending interrupt, or nil
	// when the session is not suspended.
	PendingInterrupt(ctx context.Context, sessionID string) (*Interrupt, error)

	// SetInterrupt suspends the session with intr.
	SetInterrupt(ctx context.Context, sessionID string, intr *Interrupt) error

	// ClearInterrupt lifts the session's suspension, if any.
	ClearInterrupt(ctx context.Context, sessionID string) error

	// List returns summaries of all stored sessions, newest first.
	List(ctx context.Context) ([]Info, error)

	// Delete evicts a session and any pending interrupt.
	// Returns ErrNotFound if the session does not exist.
	Delete(ctx context.Context, sessionID string) error
}
