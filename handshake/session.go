// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package handshake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oap-foundation/oaep-go/profile"
	"github.com/oap-foundation/oaep-go/types"
)

// Session is a snapshot of one handshake as seen by the challenging side.
type Session struct {
	ID            string
	RemoteDID     string
	RemoteProfile *profile.AgentProfile
	Challenge     string
	CreatedAt     time.Time
	State         types.SessionState
	// ConnectedAt is zero until the session reaches SessionConnected.
	ConnectedAt time.Time
}

// SessionStore is the engine's session table. Implementations must allow
// concurrent use and must make Transition a compare-and-swap on State.
type SessionStore interface {
	// Create inserts a new session. It fails if the id is already taken.
	Create(ctx context.Context, s *Session) error
	// Get returns a copy of the session or *types.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Transition moves the session from state from to state to. It fails
	// with *types.ErrInvalidState when the current state is not from, so of
	// several concurrent callers at most one succeeds. at is recorded as
	// ConnectedAt when to is SessionConnected.
	Transition(ctx context.Context, id string, from, to types.SessionState, at time.Time) error
	// Delete removes the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// Sweep removes every session created before cutoff and returns how many
	// were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

type memoryEntry struct {
	mu      sync.Mutex
	session Session
	removed bool
}

// MemoryStore is an in-process SessionStore. Each session carries its own
// lock, so unrelated handshakes never contend.
type MemoryStore struct {
	sessions sync.Map // id -> *memoryEntry
}

var _ SessionStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("handshake: memory store: session id is required")
	}
	if _, loaded := m.sessions.LoadOrStore(s.ID, &memoryEntry{session: *s}); loaded {
		return fmt.Errorf("handshake: memory store: session %s already exists", s.ID)
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, &types.ErrSessionNotFound{SessionID: id}
	}
	e := v.(*memoryEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, &types.ErrSessionNotFound{SessionID: id}
	}
	s := e.session
	return &s, nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, from, to types.SessionState, at time.Time) error {
	v, ok := m.sessions.Load(id)
	if !ok {
		return &types.ErrSessionNotFound{SessionID: id}
	}
	e := v.(*memoryEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return &types.ErrSessionNotFound{SessionID: id}
	}
	if e.session.State != from {
		return &types.ErrInvalidState{SessionID: id, State: e.session.State}
	}
	e.session.State = to
	if to == types.SessionConnected {
		e.session.ConnectedAt = at
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	v, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return nil
	}
	e := v.(*memoryEntry)
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return nil
}

func (m *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	removed := 0
	m.sessions.Range(func(key, value any) bool {
		e := value.(*memoryEntry)
		e.mu.Lock()
		if !e.removed && e.session.CreatedAt.Before(cutoff) {
			e.removed = true
			m.sessions.CompareAndDelete(key, e)
			removed++
		}
		e.mu.Unlock()
		return true
	})
	return removed, nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	n := 0
	m.sessions.Range(func(_, value any) bool {
		e := value.(*memoryEntry)
		e.mu.Lock()
		if !e.removed {
			n++
		}
		e.mu.Unlock()
		return true
	})
	return n
}
