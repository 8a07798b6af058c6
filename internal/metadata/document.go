// Package metadata renders and publishes contract-level metadata documents,
// the JSON a marketplace fetches through a contract's contractURI. One document
// is stored per deployed contract under contracts/<address>.json.
package metadata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/contract-factory/contract-factory/internal/factory"
)

// ContentType is the media type documents are stored and served with.
const ContentType = "application/json"

// Document is the published metadata for one deployed contract.
type Document struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Owner     string    `json:"owner"`
	Factory   string    `json:"factory"`
	Sequence  uint64    `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// NewDocument builds the document for a stored contract.
func NewDocument(c *factory.Contract) Document {
	return Document{
		Address:   c.Address().Hex(),
		Name:      c.Name(),
		Symbol:    c.Symbol(),
		Owner:     c.Owner().Hex(),
		Factory:   c.Factory().Hex(),
		Sequence:  c.Sequence(),
		CreatedAt: c.CreatedAt().UTC(),
	}
}

// Path returns the storage key of the document for addr.
func Path(addr common.Address) string {
	return "contracts/" + addr.Hex() + ".json"
}

// Render encodes doc as indented JSON with a trailing newline. The output is
// deterministic so re-publishing an unchanged contract yields identical bytes.
func Render(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render metadata document: %w", err)
	}
	return append(data, '\n'), nil
}
