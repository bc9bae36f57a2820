//go:build integration
// +build integration

package session

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/testutil"
)

func TestPostgresStore_RoundTrip_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewPostgresStore(db.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	// Load of an unknown session creates empty state.
	state, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, state.Messages)

	state.IntentKey = "uptimeList"
	state.IntentName = "uptime分析列表"
	state.Confidence = 0.95
	state.AuthToken = "tok-1"
	state.Plan = &conversation.Plan{
		Type: "plan",
		Steps: []conversation.Step{{
			AgentTool:      "uptime_report",
			Params:         map[string]any{"userText": "uptime分析列表"},
			SummarizeAfter: true,
		}},
	}
	state.Append(
		conversation.Message{Role: conversation.RoleUser, Content: "uptime分析列表"},
		conversation.Message{
			Role:      conversation.RoleAssistant,
			Content:   "调用工具：uptime_report",
			ToolCalls: []conversation.ToolCall{{Name: "uptime_report", Arguments: map[string]any{"userText": "uptime分析列表"}, CallID: "call_1"}},
		},
		conversation.Message{Role: conversation.RoleTool, Content: `{"uptime":0.99}`, CallID: "call_1"},
	)
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, state.IntentKey, loaded.IntentKey)
	assert.Equal(t, state.Confidence, loaded.Confidence)
	assert.Equal(t, state.AuthToken, loaded.AuthToken)
	require.NotNil(t, loaded.Plan)
	assert.Equal(t, "uptime_report", loaded.Plan.Steps[0].AgentTool)
	require.Len(t, loaded.Messages, 3)
	assert.Equal(t, state.Messages[1].ToolCalls[0].CallID, loaded.Messages[1].ToolCalls[0].CallID)
	assert.Equal(t, "call_1", loaded.Messages[2].CallID)

	// A second save replaces, never duplicates.
	loaded.Append(conversation.Message{Role: conversation.RoleAssistant, Content: "平均在线率 99%"})
	require.NoError(t, store.Save(ctx, loaded))
	again, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, again.Messages, 4)
}

func TestPostgresStore_Interrupts_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewPostgresStore(db.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	intr, err := store.PendingInterrupt(ctx, "sess-2")
	require.NoError(t, err)
	assert.Nil(t, intr)

	want := &Interrupt{
		Prompt:    "是否执行 uptime_report？",
		UserInput: "uptime分析列表",
		Plan: &conversation.Plan{Type: "plan", Steps: []conversation.Step{
			{AgentTool: "uptime_report", SummarizeAfter: true},
		}},
	}
	require.NoError(t, store.SetInterrupt(ctx, "sess-2", want))

	got, err := store.PendingInterrupt(ctx, "sess-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Prompt, got.Prompt)
	assert.Equal(t, want.UserInput, got.UserInput)
	require.NotNil(t, got.Plan)
	assert.Equal(t, "uptime_report", got.Plan.Steps[0].AgentTool)

	require.NoError(t, store.ClearInterrupt(ctx, "sess-2"))
	got, err = store.PendingInterrupt(ctx, "sess-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgresStore_ListAndDelete_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewPostgresStore(db.Pool, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		state := conversation.NewState(id)
		state.Append(conversation.Message{Role: conversation.RoleUser, Content: "hi"})
		require.NoError(t, store.Save(ctx, state))
	}

	infos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 1, infos[0].MessageCount)

	require.NoError(t, store.Delete(ctx, "a"))
	assert.ErrorIs(t, store.Delete(ctx, "a"), ErrNotFound)

	infos, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "b", infos[0].SessionID)
}
