// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keys

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrKeyNotFound is returned when no key pair is stored for a DID.
var ErrKeyNotFound = errors.New("keys: key not found")

// KeyStore persists the key pairs of identities this process controls,
// keyed by DID.
type KeyStore interface {
	Put(ctx context.Context, did string, kp *KeyPair) error
	Get(ctx context.Context, did string) (*KeyPair, error)
	Delete(ctx context.Context, did string) error
	List(ctx context.Context) ([]string, error)
}

// InMemoryKeyStore is a thread-safe, in-process KeyStore. Key material
// exists only for the lifetime of the process.
type InMemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*KeyPair
}

// NewInMemoryKeyStore constructs an empty InMemoryKeyStore.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{keys: make(map[string]*KeyPair)}
}

func (s *InMemoryKeyStore) Put(_ context.Context, did string, kp *KeyPair) error {
	if kp == nil {
		return fmt.Errorf("keys: cannot store nil KeyPair")
	}
	if did == "" {
		return fmt.Errorf("keys: DID must not be empty")
	}
	s.mu.Lock()
	s.keys[did] = kp
	s.mu.Unlock()
	return nil
}

func (s *InMemoryKeyStore) Get(_ context.Context, did string) (*KeyPair, error) {
	s.mu.RLock()
	kp, ok := s.keys[did]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, did)
	}
	return kp, nil
}

func (s *InMemoryKeyStore) Delete(_ context.Context, did string) error {
	s.mu.Lock()
	delete(s.keys, did)
	s.mu.Unlock()
	return nil
}

// List returns the stored DIDs in lexical order.
func (s *InMemoryKeyStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
