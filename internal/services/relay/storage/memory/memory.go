// Package memory provides an in-memory initializer store.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/louisbranch/relaychain/internal/services/relay/storage"
)

// Store keeps initializer state in memory.
type Store struct {
	mu          sync.Mutex
	initialized bool
	changes     []storage.BufferedSessionChange
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

var errStoreRequired = errors.New("initializer store is required")

// HasInitialized reports whether the marker is present.
func (s *Store) HasInitialized(ctx context.Context) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized, nil
}

// SetInitialized sets the marker.
func (s *Store) SetInitialized(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

// ClearInitialized removes the marker.
func (s *Store) ClearInitialized(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	return nil
}

// AppendSessionChange buffers a session change.
func (s *Store) AppendSessionChange(ctx context.Context, change storage.BufferedSessionChange) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, change.Clone())
	return nil
}

// SessionChanges lists the buffered changes.
func (s *Store) SessionChanges(ctx context.Context) ([]storage.BufferedSessionChange, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneChanges(s.changes), nil
}

// TakeSessionChanges lists and clears the buffered changes.
func (s *Store) TakeSessionChanges(ctx context.Context) ([]storage.BufferedSessionChange, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := s.changes
	s.changes = nil
	return taken, nil
}

func (s *Store) check(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if s == nil {
		return errStoreRequired
	}
	return nil
}

func cloneChanges(changes []storage.BufferedSessionChange) []storage.BufferedSessionChange {
	cloned := make([]storage.BufferedSessionChange, 0, len(changes))
	for _, change := range changes {
		cloned = append(cloned, change.Clone())
	}
	return cloned
}
