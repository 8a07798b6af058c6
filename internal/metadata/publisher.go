package metadata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/contract-factory/contract-factory/internal/events"
	"github.com/contract-factory/contract-factory/internal/factory"
	"github.com/contract-factory/contract-factory/internal/storage"
	"github.com/contract-factory/contract-factory/internal/telemetry"
)

// Metric labels for MetadataDocumentsPublishedTotal.
const (
	SourceEvent = "event"
	SourceSync  = "sync"
)

var _ events.Shipper = (*Publisher)(nil)

// Publisher writes metadata documents to a storage backend. It is an
// events.Shipper so it can ride the event dispatcher and publish each new
// contract off the request path.
type Publisher struct {
	store   storage.Storage
	factory common.Address
}

// NewPublisher creates a publisher for contracts deployed by factoryAddr.
func NewPublisher(store storage.Storage, factoryAddr common.Address) *Publisher {
	return &Publisher{store: store, factory: factoryAddr}
}

// Ship publishes the document for the contract announced by env.
func (p *Publisher) Ship(ctx context.Context, env *events.Envelope) error {
	d := env.Data
	doc := Document{
		Address:   d.ContractAddress,
		Name:      d.Name,
		Symbol:    d.Symbol,
		Owner:     d.Creator,
		Factory:   p.factory.Hex(),
		Sequence:  d.Sequence,
		CreatedAt: d.CreatedAt.UTC(),
	}
	return p.put(ctx, common.HexToAddress(d.ContractAddress), doc, SourceEvent)
}

// PublishContract writes the document for c, tagging the metric with source.
func (p *Publisher) PublishContract(ctx context.Context, c *factory.Contract, source string) error {
	return p.put(ctx, c.Address(), NewDocument(c), source)
}

func (p *Publisher) put(ctx context.Context, addr common.Address, doc Document, source string) error {
	data, err := Render(doc)
	if err != nil {
		return err
	}

	info, err := p.store.Put(ctx, Path(addr), data, ContentType)
	if err != nil {
		return fmt.Errorf("failed to publish metadata for %s: %w", addr.Hex(), err)
	}

	telemetry.MetadataDocumentsPublishedTotal.WithLabelValues(source).Inc()
	slog.Debug("metadata document published",
		"address", addr.Hex(),
		"path", info.Path,
		"sha256", info.Checksum,
		"source", source,
	)
	return nil
}

// Published reports whether the document for addr is already stored.
func (p *Publisher) Published(ctx context.Context, addr common.Address) (bool, error) {
	return p.store.Exists(ctx, Path(addr))
}

// Load returns the stored document bytes for addr, or storage.ErrNotFound.
func (p *Publisher) Load(ctx context.Context, addr common.Address) ([]byte, error) {
	return p.store.Get(ctx, Path(addr))
}

// Close is a no-op; the storage backend outlives the publisher.
func (p *Publisher) Close() error { return nil }
