// Package memory keeps the watermark in memory for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/threadwatch/internal/state"
)

// StateStore holds the encoded record the way a file backend would, so Load
// exercises the same decoder.
type StateStore struct {
	mu      sync.RWMutex
	data    []byte
	saves   int
	loadErr error
	saveErr error
}

// NewStateStore returns an empty store.
func NewStateStore() *StateStore {
	return &StateStore{}
}

// NewStateStoreWithRecord seeds the store with raw record bytes.
func NewStateStoreWithRecord(raw []byte) *StateStore {
	return &StateStore{data: append([]byte(nil), raw...)}
}

// FailLoad makes subsequent Load calls return err.
func (s *StateStore) FailLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// FailSave makes subsequent Save calls return err.
func (s *StateStore) FailSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Load implements watch.StateStore.
func (s *StateStore) Load(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loadErr != nil {
		return 0, s.loadErr
	}
	if s.data == nil {
		return 0, nil
	}
	return state.Decode(s.data)
}

// Save implements watch.StateStore.
func (s *StateStore) Save(_ context.Context, last int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := state.Encode(last)
	if err != nil {
		return err
	}
	s.data = data
	s.saves++
	return nil
}

// Saves reports how many successful writes occurred.
func (s *StateStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Raw returns a copy of the stored record.
func (s *StateStore) Raw() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.data...)
}
