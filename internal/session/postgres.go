package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationmind/stationmind/internal/conversation"
)

const upsertSessionSQL = `INSERT INTO sessions (id, intent_name, intent_key, confidence, plan, auth_token, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, now())
	ON CONFLICT (id) DO UPDATE
	SET intent_name = EXCLUDED.intent_name,
	    intent_key = EXCLUDED.intent_key,
	    confidence = EXCLUDED.confidence,
	    plan = EXCLUDED.plan,
	    auth_token = EXCLUDED.auth_token,
	    updated_at = now()`

const insertMessageSQL = `INSERT INTO session_messages (session_id, seq, role, content, tool_calls, call_id)
	VALUES ($1, $2, $3, $4, $5, $6)`

const selectMessagesSQL = `SELECT role, content, tool_calls, call_id
	FROM session_messages WHERE session_id = $1 ORDER BY seq`

const upsertInterruptSQL = `INSERT INTO session_interrupts (session_id, prompt, plan, user_input, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (session_id) DO UPDATE
	SET prompt = EXCLUDED.prompt,
	    plan = EXCLUDED.plan,
	    user_input = EXCLUDED.user_input,
	    created_at = EXCLUDED.created_at`

// PostgresStore persists conversation state in PostgreSQL. Used by the
// server so sessions survive restarts.
//
// PostgresStore is safe for concurrent use by multiple goroutines.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*conversation.State, error) {
	state := conversation.NewState(sessionID)

	var planJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT intent_name, intent_key, confidence, plan, auth_token FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&state.IntentName, &state.IntentKey, &state.Confidence, &planJSON, &state.AuthToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %q: %w", sessionID, err)
	}
	if state.Plan, err = conversation.UnmarshalPlan(planJSON); err != nil {
		return nil, fmt.Errorf("decoding plan for session %q: %w", sessionID, err)
	}

	rows, err := s.pool.Query(ctx, selectMessagesSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading messages for session %q: %w", sessionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg       conversation.Message
			toolCalls []byte
		)
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls, &msg.CallID); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls: %w", err)
			}
		}
		state.Messages = append(state.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return state, nil
}

// Save implements Store. The whole state is written transactionally so
// a partially saved turn can never be observed.
func (s *PostgresStore) Save(ctx context.Context, state *conversation.State) error {
	planJSON, err := conversation.MarshalPlan(state.Plan)
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertSessionSQL,
		state.SessionID, state.IntentName, state.IntentKey, state.Confidence, planJSON, state.AuthToken,
	); err != nil {
		return fmt.Errorf("saving session %q: %w", state.SessionID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM session_messages WHERE session_id = $1`, state.SessionID); err != nil {
		return fmt.Errorf("clearing messages for session %q: %w", state.SessionID, err)
	}
	for seq, msg := range state.Messages {
		var toolCalls []byte
		if len(msg.ToolCalls) > 0 {
			if toolCalls, err = json.Marshal(msg.ToolCalls); err != nil {
				return fmt.Errorf("encoding tool calls: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, insertMessageSQL,
			state.SessionID, seq, string(msg.Role), msg.Content, toolCalls, msg.CallID,
		); err != nil {
			return fmt.Errorf("saving message %d for session %q: %w", seq, state.SessionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing session %q: %w", state.SessionID, err)
	}
	s.logger.Debug("saved session", "session_id", state.SessionID, "messages", len(state.Messages))
	return nil
}

// PendingInterrupt implements Store.
func (s *PostgresStore) PendingInterrupt(ctx context.Context, sessionID string) (*Interrupt, error) {
	var (
		intr     Interrupt
		planJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT prompt, plan, user_input, created_at FROM session_interrupts WHERE session_id = $1`,
		sessionID,
	).Scan(&intr.Prompt, &planJSON, &intr.UserInput, &intr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading interrupt for session %q: %w", sessionID, err)
	}
	if intr.Plan, err = conversation.UnmarshalPlan(planJSON); err != nil {
		return nil, fmt.Errorf("decoding interrupted plan: %w", err)
	}
	return &intr, nil
}

// SetInterrupt implements Store.
func (s *PostgresStore) SetInterrupt(ctx context.Context, sessionID string, intr *Interrupt) error {
	planJSON, err := conversation.MarshalPlan(intr.Plan)
	if err != nil {
		return fmt.Errorf("encoding interrupted plan: %w", err)
	}
	createdAt := intr.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := s.pool.Exec(ctx, upsertInterruptSQL,
		sessionID, intr.Prompt, planJSON, intr.UserInput, createdAt,
	); err != nil {
		return fmt.Errorf("suspending session %q: %w", sessionID, err)
	}
	return nil
}

// ClearInterrupt implements Store.
func (s *PostgresStore) ClearInterrupt(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM session_interrupts WHERE session_id = $1`, sessionID,
	); err != nil {
		return fmt.Errorf("clearing interrupt for session %q: %w", sessionID, err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, count(m.id), s.updated_at
		 FROM sessions s LEFT JOIN session_messages m ON m.session_id = s.id
		 GROUP BY s.id, s.updated_at
		 ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.SessionID, &info.MessageCount, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM session_interrupts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("deleting interrupt for session %q: %w", sessionID, err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %q: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete of session %q: %w", sessionID, err)
	}
	return nil
}
