// Package events delivers ContractCreated events to systems outside the
// registry. Each event is wrapped in an Envelope carrying a unique delivery id
// and shipped through one or more Shippers (webhook, file). Delivery runs off
// the request path; a slow or failing shipper never delays a creation.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/contract-factory/contract-factory/internal/factory"
)

// TypeContractCreated is the Envelope.Type of every event the factory emits.
const TypeContractCreated = "ContractCreated"

// Envelope is the wire form of a delivered event.
type Envelope struct {
	// ID is unique per delivery so receivers can de-duplicate retries.
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      ContractCreated `json:"data"`
}

// ContractCreated is the JSON payload of a ContractCreated event. Addresses
// and the topic are hex encoded; addresses use EIP-55 casing.
type ContractCreated struct {
	Sequence        uint64    `json:"sequence"`
	Topic           string    `json:"topic"`
	ContractAddress string    `json:"contract_address"`
	Creator         string    `json:"creator"`
	Name            string    `json:"name"`
	Symbol          string    `json:"symbol"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewEnvelope wraps ev for delivery.
func NewEnvelope(ev factory.ContractCreated) *Envelope {
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      TypeContractCreated,
		Timestamp: time.Now().UTC(),
		Data:      FromEvent(ev),
	}
}

// FromEvent converts a registry event to its JSON payload.
func FromEvent(ev factory.ContractCreated) ContractCreated {
	return ContractCreated{
		Sequence:        ev.Sequence,
		Topic:           ev.Topic.Hex(),
		ContractAddress: ev.ContractAddress.Hex(),
		Creator:         ev.Creator.Hex(),
		Name:            ev.Name,
		Symbol:          ev.Symbol,
		CreatedAt:       ev.CreatedAt,
	}
}
