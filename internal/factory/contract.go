// Package factory implements the contract factory registry: it deploys child
// NFT contracts on behalf of a caller, indexes each deployed address against
// the account that created it, and answers ownership and listing queries.
//
// Child addresses follow the Ethereum CREATE rule: the factory's own address
// combined with the factory nonce consumed by the creation. Nonces start at 1
// and increase by exactly one per creation, so the global listing order, the
// nonce order, and the ContractCreated event order are the same sequence.
package factory

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ContractCreatedSignature is the canonical event signature emitted for every deployment.
const ContractCreatedSignature = "ContractCreated(address)"

// ContractCreatedTopic is the keccak256 hash of ContractCreatedSignature, i.e. topic[0]
// of the log an on-chain factory contract would emit.
var ContractCreatedTopic = crypto.Keccak256Hash([]byte(ContractCreatedSignature))

// ContractSpec carries every field of a deployed contract. It is used to construct
// a Contract and to persist or restore one from a store.
type ContractSpec struct {
	Address   common.Address
	Factory   common.Address
	Owner     common.Address
	Name      string
	Symbol    string
	Sequence  uint64
	CreatedAt time.Time
}

// Contract is a deployed child contract. All fields are fixed at construction;
// there is no transfer of ownership.
type Contract struct {
	spec ContractSpec
}

// NewContract builds an immutable Contract from spec.
func NewContract(spec ContractSpec) *Contract {
	return &Contract{spec: spec}
}

// Address returns the deployed address of the contract.
func (c *Contract) Address() common.Address { return c.spec.Address }

// Name returns the name passed to the creation call.
func (c *Contract) Name() string { return c.spec.Name }

// Symbol returns the symbol passed to the creation call.
func (c *Contract) Symbol() string { return c.spec.Symbol }

// Owner returns the account that invoked the creation call.
func (c *Contract) Owner() common.Address { return c.spec.Owner }

// Factory returns the address of the factory that deployed the contract.
func (c *Contract) Factory() common.Address { return c.spec.Factory }

// Sequence returns the factory nonce consumed by the deployment.
func (c *Contract) Sequence() uint64 { return c.spec.Sequence }

// CreatedAt returns the deployment time in UTC.
func (c *Contract) CreatedAt() time.Time { return c.spec.CreatedAt }

// Spec returns a copy of the contract's fields.
func (c *Contract) Spec() ContractSpec { return c.spec }

// Event returns the ContractCreated log entry for this deployment.
func (c *Contract) Event() ContractCreated {
	return ContractCreated{
		Sequence:        c.spec.Sequence,
		Topic:           ContractCreatedTopic,
		ContractAddress: c.spec.Address,
		Creator:         c.spec.Owner,
		Name:            c.spec.Name,
		Symbol:          c.spec.Symbol,
		CreatedAt:       c.spec.CreatedAt,
	}
}

// ContractCreated is the event emitted once per deployment, carrying the new address.
type ContractCreated struct {
	Sequence        uint64
	Topic           common.Hash
	ContractAddress common.Address
	Creator         common.Address
	Name            string
	Symbol          string
	CreatedAt       time.Time
}
