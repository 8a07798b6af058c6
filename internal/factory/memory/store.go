// Package memory provides an in-memory factory.Store used for tests, local
// development, and single-process deployments without a database.
package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/contract-factory/contract-factory/internal/factory"
)

var _ factory.Store = (*Store)(nil)

// Store keeps contracts in insertion order with address and owner indexes.
type Store struct {
	mu        sync.RWMutex
	all       []*factory.Contract
	byAddress map[common.Address]*factory.Contract
	byOwner   map[common.Address][]*factory.Contract
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byAddress: make(map[common.Address]*factory.Contract),
		byOwner:   make(map[common.Address][]*factory.Contract),
	}
}

// Insert allocates the next sequence and appends the built contract.
// The write lock is held across build so sequences are handed out in order.
func (s *Store) Insert(ctx context.Context, build factory.BuildFunc) (*factory.Contract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := uint64(len(s.all)) + 1
	c, err := build(seq)
	if err != nil {
		return nil, err
	}
	if _, exists := s.byAddress[c.Address()]; exists {
		return nil, factory.ErrDuplicateAddress
	}

	s.all = append(s.all, c)
	s.byAddress[c.Address()] = c
	s.byOwner[c.Owner()] = append(s.byOwner[c.Owner()], c)
	return c, nil
}

// Get returns the contract at addr.
func (s *Store) Get(_ context.Context, addr common.Address) (*factory.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byAddress[addr]
	if !ok {
		return nil, factory.ErrContractNotFound
	}
	return c, nil
}

// ListByOwner returns a snapshot of the owner's contracts.
func (s *Store) ListByOwner(_ context.Context, owner common.Address) ([]*factory.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.byOwner[owner]
	out := make([]*factory.Contract, len(owned))
	copy(out, owned)
	return out, nil
}

// List returns a snapshot of contracts after the given sequence.
func (s *Store) List(_ context.Context, after uint64, limit int) ([]*factory.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Sequence n lives at index n-1, so everything after `after` starts at index `after`.
	if after >= uint64(len(s.all)) {
		return []*factory.Contract{}, nil
	}
	rest := s.all[after:]
	if limit > 0 && limit < len(rest) {
		rest = rest[:limit]
	}
	out := make([]*factory.Contract, len(rest))
	copy(out, rest)
	return out, nil
}

// Count returns the number of stored contracts.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.all), nil
}
