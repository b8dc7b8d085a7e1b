// Package credential holds the API key used for remote generation and
// answers whether one is available.
package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNoKey is returned by Key when no key has been set.
var ErrNoKey = errors.New("credential: no API key configured")

// Gate reports whether remote generation has a usable credential.
type Gate interface {
	HasCredential(ctx context.Context) (bool, error)
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context) (bool, error)

// HasCredential calls f.
func (f GateFunc) HasCredential(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Compile-time check that KeyStore implements Gate.
var _ Gate = (*KeyStore)(nil)

// KeyStore is a thread-safe in-memory API key holder.
type KeyStore struct {
	mu  sync.RWMutex
	key string
}

// NewKeyStore creates a store seeded with key, which may be empty.
func NewKeyStore(key string) *KeyStore {
	return &KeyStore{key: strings.TrimSpace(key)}
}

// SetKey replaces the stored key. An empty key clears it.
func (s *KeyStore) SetKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = strings.TrimSpace(key)
}

// Key returns the stored key or ErrNoKey.
func (s *KeyStore) Key() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == "" {
		return "", ErrNoKey
	}
	return s.key, nil
}

// HasCredential reports whether a key is set.
func (s *KeyStore) HasCredential(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != "", nil
}
