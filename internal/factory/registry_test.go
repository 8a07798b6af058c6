package factory_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contract-factory/contract-factory/internal/factory"
	"github.com/contract-factory/contract-factory/internal/factory/memory"
)

var (
	factoryAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	user1       = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	user2       = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func newRegistry(t *testing.T, opts ...factory.Option) *factory.Registry {
	t.Helper()
	return factory.NewRegistry(factoryAddr, memory.New(), opts...)
}

func TestCreate_MapsNewContractToOwner(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	c, err := r.Create(ctx, user1, "Some Name", "TTT")
	require.NoError(t, err)

	list, err := r.ListFor(ctx, user1)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{c.Address()}, list)

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{c.Address()}, all)
}

func TestListFor_OnlySendersContracts(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	c1, err := r.Create(ctx, user1, "name", "symbol")
	require.NoError(t, err)
	c2, err := r.Create(ctx, user2, "name", "symbol")
	require.NoError(t, err)

	list1, err := r.ListFor(ctx, user1)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{c1.Address()}, list1)

	list2, err := r.ListFor(ctx, user2)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{c2.Address()}, list2)
}

func TestListAll_InCallOrder(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	c1, err := r.Create(ctx, user1, "name", "symbol")
	require.NoError(t, err)
	c2, err := r.Create(ctx, user2, "name", "symbol")
	require.NoError(t, err)

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{c1.Address(), c2.Address()}, all)
}

func TestOwnerOf_ReturnsCreator(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	c, err := r.Create(ctx, user2, "name", "symbol")
	require.NoError(t, err)

	owner, err := r.OwnerOf(ctx, c.Address())
	require.NoError(t, err)
	assert.Equal(t, user2, owner)
	assert.NotEqual(t, r.Address(), owner)
}

func TestOwnerOf_UnknownAddress(t *testing.T) {
	r := newRegistry(t)

	_, err := r.OwnerOf(context.Background(), common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	assert.ErrorIs(t, err, factory.ErrContractNotFound)
}

func TestListFor_UnknownCreatorIsEmpty(t *testing.T) {
	r := newRegistry(t)

	list, err := r.ListFor(context.Background(), user1)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestGet_RecordSurface(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newRegistry(t, factory.WithClock(func() time.Time { return created }))

	c, err := r.Create(ctx, user2, "0.12345", "0.6789")
	require.NoError(t, err)

	got, err := r.Get(ctx, c.Address())
	require.NoError(t, err)
	assert.Equal(t, "0.12345", got.Name())
	assert.Equal(t, "0.6789", got.Symbol())
	assert.Equal(t, user2, got.Owner())
	assert.Equal(t, factoryAddr, got.Factory())
	assert.Equal(t, uint64(1), got.Sequence())
	assert.Equal(t, created, got.CreatedAt())
}

func TestCreate_DerivesCreateAddressFromNonce(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	c1, err := r.Create(ctx, user1, "a", "A")
	require.NoError(t, err)
	c2, err := r.Create(ctx, user1, "a", "A")
	require.NoError(t, err)

	// The factory's first child uses nonce 1 (EIP-161 contract nonces start at 1).
	assert.Equal(t, common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"), c1.Address())
	assert.Equal(t, crypto.CreateAddress(factoryAddr, 2), c2.Address())
	assert.NotEqual(t, c1.Address(), c2.Address())
}

func TestCreate_DuplicateNameAndSymbolAllowed(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	_, err := r.Create(ctx, user1, "name", "symbol")
	require.NoError(t, err)
	_, err = r.Create(ctx, user1, "name", "symbol")
	require.NoError(t, err)

	list, err := r.ListFor(ctx, user1)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCreate_EmptyLabelsAccepted(t *testing.T) {
	r := newRegistry(t)

	c, err := r.Create(context.Background(), user1, "", "")
	require.NoError(t, err)
	assert.Equal(t, "", c.Name())
	assert.Equal(t, "", c.Symbol())
}

func TestCreate_Validation(t *testing.T) {
	long := strings.Repeat("x", factory.MaxLabelLength+1)
	tests := []struct {
		name    string
		creator common.Address
		label   string
		symbol  string
		wantErr error
	}{
		{name: "zero creator", creator: common.Address{}, label: "n", symbol: "s", wantErr: factory.ErrInvalidCreator},
		{name: "long name", creator: user1, label: long, symbol: "s", wantErr: factory.ErrInvalidArgument},
		{name: "long symbol", creator: user1, label: "n", symbol: long, wantErr: factory.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			_, err := r.Create(context.Background(), tt.creator, tt.label, tt.symbol)
			assert.ErrorIs(t, err, tt.wantErr)

			n, err := r.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestCreate_PublishesEvent(t *testing.T) {
	ctx := context.Background()
	var got []factory.ContractCreated
	sink := factory.EventSinkFunc(func(_ context.Context, ev factory.ContractCreated) {
		got = append(got, ev)
	})
	r := newRegistry(t, factory.WithEventSink(sink))

	c, err := r.Create(ctx, user1, "Some Name", "TTT")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, c.Address(), got[0].ContractAddress)
	assert.Equal(t, user1, got[0].Creator)
	assert.Equal(t, factory.ContractCreatedTopic, got[0].Topic)
	assert.Equal(t, uint64(1), got[0].Sequence)
}

func TestEvents_Pagination(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	for i := 0; i < 5; i++ {
		_, err := r.Create(ctx, user1, "n", "s")
		require.NoError(t, err)
	}

	page, err := r.Events(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].Sequence)
	assert.Equal(t, uint64(4), page[1].Sequence)

	rest, err := r.Events(ctx, 4, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, uint64(5), rest[0].Sequence)

	none, err := r.Events(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCreate_ConcurrentCallsAreTotallyOrdered(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creator := user1
			if i%2 == 1 {
				creator = user2
			}
			_, err := r.Create(ctx, creator, "n", "s")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, n)
	for i, addr := range all {
		assert.Equal(t, crypto.CreateAddress(factoryAddr, uint64(i+1)), addr)
	}

	l1, err := r.ListFor(ctx, user1)
	require.NoError(t, err)
	l2, err := r.ListFor(ctx, user2)
	require.NoError(t, err)
	assert.Len(t, l1, n/2)
	assert.Len(t, l2, n/2)
}

type failingStore struct {
	factory.Store
}

func (failingStore) Insert(context.Context, factory.BuildFunc) (*factory.Contract, error) {
	return nil, errors.New("disk full")
}

func TestCreate_StoreError(t *testing.T) {
	published := false
	sink := factory.EventSinkFunc(func(context.Context, factory.ContractCreated) { published = true })
	r := factory.NewRegistry(factoryAddr, failingStore{Store: memory.New()}, factory.WithEventSink(sink))

	_, err := r.Create(context.Background(), user1, "n", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, published)
}
