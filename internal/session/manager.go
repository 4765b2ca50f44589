package session

import (
	"context"
	"errors"
	"sync"

	"github.com/antoniostano/meera/internal/chat"
	"github.com/antoniostano/meera/internal/store"
)

// Manager holds one Conversation per username for the lifetime of the
// process. A conversation is hydrated from the persistence backend on first
// access; after that the in-memory state is the source of truth for the
// session. Usernames never share mutable state.
type Manager struct {
	mu      sync.RWMutex
	convos  map[string]*Conversation
	backend store.Store

	onLoadFallback func(username string, err error)
}

func NewManager(backend store.Store) *Manager {
	return &Manager{
		convos:  make(map[string]*Conversation),
		backend: backend,
	}
}

// SetLoadFallbackHook registers a callback invoked when hydration falls back
// to an empty conversation because the backend failed to load.
func (m *Manager) SetLoadFallbackHook(hook func(username string, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLoadFallback = hook
}

// Conversation returns the live conversation for a username, hydrating it
// from the backend on first access. A storage failure degrades to an empty
// conversation and fires the load-fallback hook; it never aborts the
// session.
func (m *Manager) Conversation(ctx context.Context, username string) *Conversation {
	m.mu.RLock()
	c, ok := m.convos[username]
	m.mu.RUnlock()
	if ok {
		return c
	}

	var (
		turns   []chat.Turn
		loadErr error
	)
	if m.backend != nil {
		turns, loadErr = m.backend.Load(ctx, username)
		if loadErr != nil {
			turns = nil
		}
	}

	m.mu.Lock()
	// Another request may have hydrated the same user while we were loading.
	if existing, ok := m.convos[username]; ok {
		m.mu.Unlock()
		return existing
	}
	c = newConversation(username, turns)
	m.convos[username] = c
	hook := m.onLoadFallback
	m.mu.Unlock()

	if loadErr != nil && errors.Is(loadErr, store.ErrStorage) && hook != nil {
		hook(username, loadErr)
	}
	return c
}

// Reset drops the in-memory state for a username so a later access rebuilds
// it from the backend. Used when the active identity changes, so one user's
// transcript never leaks into another session.
func (m *Manager) Reset(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convos, username)
}

// ActiveCount reports how many conversations are currently hydrated.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.convos)
}
