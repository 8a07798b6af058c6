// Package models - contract.go defines the row types for deployed contracts and
// the factory nonce.
package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/contract-factory/contract-factory/internal/factory"
)

// Contract is a row of the contracts table. Addresses are stored in EIP-55 form.
type Contract struct {
	Address        string    `db:"address" json:"address"`
	FactoryAddress string    `db:"factory_address" json:"factory_address"`
	OwnerAddress   string    `db:"owner_address" json:"owner_address"`
	Name           string    `db:"name" json:"name"`
	Symbol         string    `db:"symbol" json:"symbol"`
	Sequence       int64     `db:"sequence" json:"sequence"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NewContract converts a domain contract to its row form.
func NewContract(c *factory.Contract) *Contract {
	return &Contract{
		Address:        c.Address().Hex(),
		FactoryAddress: c.Factory().Hex(),
		OwnerAddress:   c.Owner().Hex(),
		Name:           c.Name(),
		Symbol:         c.Symbol(),
		Sequence:       int64(c.Sequence()),
		CreatedAt:      c.CreatedAt(),
	}
}

// ToFactory converts the row back to a domain contract.
func (c *Contract) ToFactory() *factory.Contract {
	return factory.NewContract(factory.ContractSpec{
		Address:   common.HexToAddress(c.Address),
		Factory:   common.HexToAddress(c.FactoryAddress),
		Owner:     common.HexToAddress(c.OwnerAddress),
		Name:      c.Name,
		Symbol:    c.Symbol,
		Sequence:  uint64(c.Sequence),
		CreatedAt: c.CreatedAt.UTC(),
	})
}
