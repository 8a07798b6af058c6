package factory

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// BuildFunc derives a contract from the sequence number allocated by a Store.
type BuildFunc func(seq uint64) (*Contract, error)

// Store persists deployed contracts in creation order.
//
// Insert must serialize concurrent callers: the sequence passed to build is
// exactly one greater than the sequence of the previously inserted contract
// (the first contract gets 1), and no other Insert may observe or allocate the
// same sequence. If build returns an error nothing is persisted.
type Store interface {
	Insert(ctx context.Context, build BuildFunc) (*Contract, error)

	// Get returns ErrContractNotFound when nothing was deployed at addr.
	Get(ctx context.Context, addr common.Address) (*Contract, error)

	// ListByOwner returns the owner's contracts in creation order.
	ListByOwner(ctx context.Context, owner common.Address) ([]*Contract, error)

	// List returns contracts with a sequence greater than after, in creation
	// order, at most limit of them. A limit <= 0 means no limit.
	List(ctx context.Context, after uint64, limit int) ([]*Contract, error)

	Count(ctx context.Context) (int, error)
}

// EventSink receives ContractCreated events after the contract is persisted.
// Implementations must not block the caller for long; delivery is best effort.
type EventSink interface {
	Publish(ctx context.Context, ev ContractCreated)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(ctx context.Context, ev ContractCreated)

// Publish calls f(ctx, ev).
func (f EventSinkFunc) Publish(ctx context.Context, ev ContractCreated) { f(ctx, ev) }
