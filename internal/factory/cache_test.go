package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contract-factory/contract-factory/internal/factory"
	"github.com/contract-factory/contract-factory/internal/factory/memory"
)

type countingStore struct {
	factory.Store
	gets int
}

func (s *countingStore) Get(ctx context.Context, addr common.Address) (*factory.Contract, error) {
	s.gets++
	return s.Store.Get(ctx, addr)
}

func TestCachedStore_InsertPrimesCache(t *testing.T) {
	inner := &countingStore{Store: memory.New()}
	cs := factory.NewCachedStore(inner, time.Minute)
	r := factory.NewRegistry(factoryAddr, cs)

	c, err := r.Create(context.Background(), user1, "n", "s")
	require.NoError(t, err)
	assert.Equal(t, 1, cs.Len())

	got, err := r.Get(context.Background(), c.Address())
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Zero(t, inner.gets)
}

func TestCachedStore_ReadThrough(t *testing.T) {
	mem := memory.New()
	seed := factory.NewRegistry(factoryAddr, mem)
	c, err := seed.Create(context.Background(), user1, "n", "s")
	require.NoError(t, err)

	inner := &countingStore{Store: mem}
	cs := factory.NewCachedStore(inner, 0)

	for i := 0; i < 3; i++ {
		got, err := cs.Get(context.Background(), c.Address())
		require.NoError(t, err)
		assert.Equal(t, c.Address(), got.Address())
	}
	assert.Equal(t, 1, inner.gets)
}

func TestCachedStore_MissesAreNotCached(t *testing.T) {
	inner := &countingStore{Store: memory.New()}
	cs := factory.NewCachedStore(inner, time.Minute)
	addr := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	_, err := cs.Get(context.Background(), addr)
	assert.ErrorIs(t, err, factory.ErrContractNotFound)
	_, err = cs.Get(context.Background(), addr)
	assert.ErrorIs(t, err, factory.ErrContractNotFound)

	assert.Equal(t, 2, inner.gets)
	assert.Zero(t, cs.Len())
}
