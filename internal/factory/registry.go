package factory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/contract-factory/contract-factory/internal/telemetry"
)

// MaxLabelLength bounds the byte length of a contract name or symbol.
const MaxLabelLength = 256

// Registry deploys child contracts and indexes them by creator.
// It is safe for concurrent use; ordering guarantees come from the Store.
type Registry struct {
	address common.Address
	store   Store
	sinks   []EventSink
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithEventSink registers a sink that receives every ContractCreated event.
func WithEventSink(sink EventSink) Option {
	return func(r *Registry) {
		if sink != nil {
			r.sinks = append(r.sinks, sink)
		}
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry for the factory deployed at address.
func NewRegistry(address common.Address, store Store, opts ...Option) *Registry {
	r := &Registry{
		address: address,
		store:   store,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Address returns the factory's own address.
func (r *Registry) Address() common.Address {
	return r.address
}

// Create deploys a new contract owned by creator and records it in both the
// creator's listing and the global listing. The returned contract carries the
// new address; the same address is delivered to every EventSink.
func (r *Registry) Create(ctx context.Context, creator common.Address, name, symbol string) (*Contract, error) {
	if creator == (common.Address{}) {
		return nil, ErrInvalidCreator
	}
	if len(name) > MaxLabelLength {
		return nil, fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidArgument, MaxLabelLength)
	}
	if len(symbol) > MaxLabelLength {
		return nil, fmt.Errorf("%w: symbol exceeds %d bytes", ErrInvalidArgument, MaxLabelLength)
	}

	contract, err := r.store.Insert(ctx, func(seq uint64) (*Contract, error) {
		return NewContract(ContractSpec{
			Address:   crypto.CreateAddress(r.address, seq),
			Factory:   r.address,
			Owner:     creator,
			Name:      name,
			Symbol:    symbol,
			Sequence:  seq,
			CreatedAt: r.now().UTC(),
		}), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}

	telemetry.ContractsCreatedTotal.Inc()
	telemetry.RegistryContracts.Inc()
	slog.Info("contract created",
		"address", contract.Address().Hex(),
		"owner", creator.Hex(),
		"sequence", contract.Sequence(),
	)

	ev := contract.Event()
	for _, sink := range r.sinks {
		sink.Publish(ctx, ev)
	}

	return contract, nil
}

// ListFor returns the addresses deployed by creator in creation order.
// An account that never deployed anything gets an empty, non-nil slice.
func (r *Registry) ListFor(ctx context.Context, creator common.Address) ([]common.Address, error) {
	contracts, err := r.store.ListByOwner(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts for %s: %w", creator.Hex(), err)
	}
	return Addresses(contracts), nil
}

// ListAll returns every deployed address in creation order.
func (r *Registry) ListAll(ctx context.Context) ([]common.Address, error) {
	contracts, err := r.store.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return Addresses(contracts), nil
}

// OwnerOf returns the account that created the contract at addr.
func (r *Registry) OwnerOf(ctx context.Context, addr common.Address) (common.Address, error) {
	contract, err := r.Get(ctx, addr)
	if err != nil {
		return common.Address{}, err
	}
	return contract.Owner(), nil
}

// Get returns the contract deployed at addr, or ErrContractNotFound.
func (r *Registry) Get(ctx context.Context, addr common.Address) (*Contract, error) {
	contract, err := r.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// Events returns ContractCreated events with a sequence greater than after.
func (r *Registry) Events(ctx context.Context, after uint64, limit int) ([]ContractCreated, error) {
	contracts, err := r.store.List(ctx, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	events := make([]ContractCreated, 0, len(contracts))
	for _, c := range contracts {
		events = append(events, c.Event())
	}
	return events, nil
}

// Count returns the number of deployed contracts.
func (r *Registry) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}
