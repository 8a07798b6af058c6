// Package contracts implements the registry HTTP handlers: contract creation,
// the global and per-owner listings, record accessors, metadata documents and
// the ContractCreated log. Reads are public; creation requires a caller token.
package contracts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/contract-factory/contract-factory/internal/factory"
	"github.com/contract-factory/contract-factory/internal/metadata"
	"github.com/contract-factory/contract-factory/internal/middleware"
	"github.com/contract-factory/contract-factory/internal/storage"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

// DocumentLoader returns a stored metadata document. metadata.Publisher
// satisfies it.
type DocumentLoader interface {
	Load(ctx context.Context, addr common.Address) ([]byte, error)
}

// ContractHandlers serves the /api/v1/contracts, /owners and /events routes.
type ContractHandlers struct {
	registry *factory.Registry
	docs     DocumentLoader
}

// NewContractHandlers creates handlers over registry. docs may be nil when
// document storage is disabled; metadata is then always rendered on the fly.
func NewContractHandlers(registry *factory.Registry, docs DocumentLoader) *ContractHandlers {
	return &ContractHandlers{registry: registry, docs: docs}
}

// CreateContractRequest is the body of POST /api/v1/contracts.
type CreateContractRequest struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// EventResponse is the JSON form of a ContractCreated event.
type EventResponse struct {
	Sequence        uint64    `json:"sequence"`
	Topic           string    `json:"topic"`
	ContractAddress string    `json:"contract_address"`
	Creator         string    `json:"creator"`
	Name            string    `json:"name"`
	Symbol          string    `json:"symbol"`
	CreatedAt       time.Time `json:"created_at"`
}

// ContractResponse is the JSON form of a Record.
type ContractResponse struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Owner     string    `json:"owner"`
	Factory   string    `json:"factory"`
	Sequence  uint64    `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateContractResponse is returned by a successful creation.
type CreateContractResponse struct {
	Address  string        `json:"address"`
	Name     string        `json:"name"`
	Symbol   string        `json:"symbol"`
	Owner    string        `json:"owner"`
	Sequence uint64        `json:"sequence"`
	Event    EventResponse `json:"event"`
}

func toEventResponse(ev factory.ContractCreated) EventResponse {
	return EventResponse{
		Sequence:        ev.Sequence,
		Topic:           ev.Topic.Hex(),
		ContractAddress: ev.ContractAddress.Hex(),
		Creator:         ev.Creator.Hex(),
		Name:            ev.Name,
		Symbol:          ev.Symbol,
		CreatedAt:       ev.CreatedAt,
	}
}

func toContractResponse(c *factory.Contract) ContractResponse {
	return ContractResponse{
		Address:   c.Address().Hex(),
		Name:      c.Name(),
		Symbol:    c.Symbol(),
		Owner:     c.Owner().Hex(),
		Factory:   c.Factory().Hex(),
		Sequence:  c.Sequence(),
		CreatedAt: c.CreatedAt(),
	}
}

// writeError maps registry errors to a status. Unknown errors are logged and
// reported as 500 without detail.
func writeError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, factory.ErrContractNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
	case errors.Is(err, factory.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
	case errors.Is(err, factory.ErrInvalidCreator), errors.Is(err, factory.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("registry request failed", "op", op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + op})
	}
}

// addressParam parses the :address path parameter, writing 400 on failure.
func addressParam(c *gin.Context) (common.Address, bool) {
	addr, err := factory.ParseAddress(c.Param("address"))
	if err != nil {
		writeError(c, err, "parse address")
		return common.Address{}, false
	}
	return addr, true
}

// @Summary      Create contract
// @Description  Deploys a new contract owned by the calling account and records it in the creator's and the global listing.
// @Tags         Contracts
// @Accept       json
// @Produce      json
// @Security     Bearer
// @Param        body  body  CreateContractRequest  true  "Name and symbol"
// @Success      201  {object}  CreateContractResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid body or label too long"
// @Failure      401  {object}  map[string]interface{}  "Missing or invalid token"
// @Router       /api/v1/contracts [post]
// CreateHandler handles POST /api/v1/contracts
func (h *ContractHandlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := middleware.GetCaller(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req CreateContractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		contract, err := h.registry.Create(c.Request.Context(), caller, req.Name, req.Symbol)
		if err != nil {
			writeError(c, err, "create contract")
			return
		}

		c.JSON(http.StatusCreated, CreateContractResponse{
			Address:  contract.Address().Hex(),
			Name:     contract.Name(),
			Symbol:   contract.Symbol(),
			Owner:    contract.Owner().Hex(),
			Sequence: contract.Sequence(),
			Event:    toEventResponse(contract.Event()),
		})
	}
}

// @Summary      List all contracts
// @Tags         Contracts
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "contracts: addresses in creation order"
// @Router       /api/v1/contracts [get]
// ListAllHandler handles GET /api/v1/contracts
func (h *ContractHandlers) ListAllHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		addrs, err := h.registry.ListAll(c.Request.Context())
		if err != nil {
			writeError(c, err, "list contracts")
			return
		}
		c.JSON(http.StatusOK, gin.H{"contracts": factory.HexAddresses(addrs)})
	}
}

// @Summary      List contracts by owner
// @Tags         Contracts
// @Produce      json
// @Param        address  path  string  true  "Owner account address"
// @Success      200  {object}  map[string]interface{}  "owner, contracts"
// @Failure      400  {object}  map[string]interface{}  "Invalid address"
// @Router       /api/v1/owners/{address}/contracts [get]
// ListForOwnerHandler handles GET /api/v1/owners/:address/contracts
func (h *ContractHandlers) ListForOwnerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := addressParam(c)
		if !ok {
			return
		}
		addrs, err := h.registry.ListFor(c.Request.Context(), owner)
		if err != nil {
			writeError(c, err, "list contracts")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"owner":     owner.Hex(),
			"contracts": factory.HexAddresses(addrs),
		})
	}
}

// lookup resolves :address to a contract, writing the error response itself.
func (h *ContractHandlers) lookup(c *gin.Context) (*factory.Contract, bool) {
	addr, ok := addressParam(c)
	if !ok {
		return nil, false
	}
	contract, err := h.registry.Get(c.Request.Context(), addr)
	if err != nil {
		writeError(c, err, "get contract")
		return nil, false
	}
	return contract, true
}

// @Summary      Get contract
// @Tags         Contracts
// @Produce      json
// @Param        address  path  string  true  "Contract address"
// @Success      200  {object}  ContractResponse
// @Failure      404  {object}  map[string]interface{}  "Contract not found"
// @Router       /api/v1/contracts/{address} [get]
// GetHandler handles GET /api/v1/contracts/:address
func (h *ContractHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contract, ok := h.lookup(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toContractResponse(contract))
	}
}

// NameHandler handles GET /api/v1/contracts/:address/name
func (h *ContractHandlers) NameHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if contract, ok := h.lookup(c); ok {
			c.JSON(http.StatusOK, gin.H{"name": contract.Name()})
		}
	}
}

// SymbolHandler handles GET /api/v1/contracts/:address/symbol
func (h *ContractHandlers) SymbolHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if contract, ok := h.lookup(c); ok {
			c.JSON(http.StatusOK, gin.H{"symbol": contract.Symbol()})
		}
	}
}

// OwnerHandler handles GET /api/v1/contracts/:address/owner
func (h *ContractHandlers) OwnerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, ok := addressParam(c)
		if !ok {
			return
		}
		owner, err := h.registry.OwnerOf(c.Request.Context(), addr)
		if err != nil {
			writeError(c, err, "get owner")
			return
		}
		c.JSON(http.StatusOK, gin.H{"owner": owner.Hex()})
	}
}

// @Summary      Contract metadata document
// @Description  Returns the published metadata document, rendering it on the fly when it has not been written yet.
// @Tags         Contracts
// @Produce      json
// @Param        address  path  string  true  "Contract address"
// @Success      200  {object}  metadata.Document
// @Failure      404  {object}  map[string]interface{}  "Contract not found"
// @Router       /api/v1/contracts/{address}/metadata [get]
// MetadataHandler handles GET /api/v1/contracts/:address/metadata
func (h *ContractHandlers) MetadataHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contract, ok := h.lookup(c)
		if !ok {
			return
		}

		if h.docs != nil {
			data, err := h.docs.Load(c.Request.Context(), contract.Address())
			switch {
			case err == nil:
				c.Header("X-Metadata-Source", "storage")
				c.Data(http.StatusOK, metadata.ContentType, data)
				return
			case !errors.Is(err, storage.ErrNotFound):
				slog.Warn("failed to load metadata document, rendering instead",
					"address", contract.Address().Hex(), "error", err)
			}
		}

		data, err := metadata.Render(metadata.NewDocument(contract))
		if err != nil {
			writeError(c, err, "render metadata")
			return
		}
		c.Header("X-Metadata-Source", "rendered")
		c.Data(http.StatusOK, metadata.ContentType, data)
	}
}

// @Summary      ContractCreated log
// @Description  Returns creation events with a sequence greater than after, oldest first.
// @Tags         Events
// @Produce      json
// @Param        after  query  int  false  "Return events after this sequence"
// @Param        limit  query  int  false  "Maximum events (default 100, max 1000)"
// @Success      200  {object}  map[string]interface{}  "events, next"
// @Failure      400  {object}  map[string]interface{}  "Invalid query parameter"
// @Router       /api/v1/events [get]
// EventsHandler handles GET /api/v1/events
func (h *ContractHandlers) EventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "after must be a non-negative integer"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultEventsLimit)))
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if limit > maxEventsLimit {
			limit = maxEventsLimit
		}

		evs, err := h.registry.Events(c.Request.Context(), after, limit)
		if err != nil {
			writeError(c, err, "list events")
			return
		}

		out := make([]EventResponse, 0, len(evs))
		next := after
		for _, ev := range evs {
			out = append(out, toEventResponse(ev))
			next = ev.Sequence
		}
		c.JSON(http.StatusOK, gin.H{"events": out, "next": next})
	}
}
