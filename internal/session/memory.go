package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stationmind/stationmind/internal/conversation"
)

// MemoryStore is the in-process Store used by the CLI and by tests.
// States are cloned on the way in and out so callers can never alias
// stored data.
type MemoryStore struct {
	mu         sync.RWMutex
	states     map[string]*conversation.State
	interrupts map[string]*Interrupt
	updatedAt  map[string]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:     make(map[string]*conversation.State),
		interrupts: make(map[string]*Interrupt),
		updatedAt:  make(map[string]time.Time),
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, sessionID string) (*conversation.State, error) {
	m.mu.RLock()
	state, ok := m.states[sessionID]
	m.mu.RUnlock()
	if !ok {
		return conversation.NewState(sessionID), nil
	}
	return state.Clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, state *conversation.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.SessionID] = state.Clone()
	m.updatedAt[state.SessionID] = time.Now()
	return nil
}

// PendingInterrupt implements Store.
func (m *MemoryStore) PendingInterrupt(_ context.Context, sessionID string) (*Interrupt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	intr, ok := m.interrupts[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *intr
	return &cp, nil
}

// SetInterrupt implements Store.
func (m *MemoryStore) SetInterrupt(_ context.Context, sessionID string, intr *Interrupt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *intr
	m.interrupts[sessionID] = &cp
	return nil
}

// ClearInterrupt implements Store.
func (m *MemoryStore) ClearInterrupt(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.interrupts, sessionID)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.states))
	for id, state := range m.states {
		infos = append(infos, Info{
			SessionID:    id,
			MessageCount: len(state.Messages),
			UpdatedAt:    m.updatedAt[id],
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.states, sessionID)
	delete(m.interrupts, sessionID)
	delete(m.updatedAt, sessionID)
	return nil
}
