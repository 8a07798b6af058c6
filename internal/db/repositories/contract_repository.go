// contract_repository.go implements ContractRepository, the PostgreSQL-backed
// factory.Store.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/contract-factory/contract-factory/internal/db/models"
	"github.com/contract-factory/contract-factory/internal/factory"
)

var _ factory.Store = (*ContractRepository)(nil)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const contractColumns = `address, factory_address, owner_address, name, symbol, sequence, created_at`

// ContractRepository handles database operations for deployed contracts
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository creates a new contract repository
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Insert locks the factory nonce row, builds the contract for the next
// sequence, and stores it together with the advanced nonce in one transaction.
// Concurrent inserts queue on the row lock.
func (r *ContractRepository) Insert(ctx context.Context, build factory.BuildFunc) (*factory.Contract, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	var nonce int64
	if err := tx.GetContext(ctx, &nonce, `SELECT nonce FROM factory_state WHERE id = 1 FOR UPDATE`); err != nil {
		return nil, fmt.Errorf("failed to lock factory nonce: %w", err)
	}

	seq := uint64(nonce) + 1
	contract, err := build(seq)
	if err != nil {
		return nil, err
	}
	row := models.NewContract(contract)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO contracts (`+contractColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.Address, row.FactoryAddress, row.OwnerAddress, row.Name, row.Symbol, row.Sequence, row.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, factory.ErrDuplicateAddress
		}
		return nil, fmt.Errorf("failed to insert contract: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE factory_state SET nonce = $1, updated_at = $2 WHERE id = 1`,
		row.Sequence, row.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to advance factory nonce: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit contract: %w", err)
	}
	return contract, nil
}

// Get retrieves a contract by address
func (r *ContractRepository) Get(ctx context.Context, addr common.Address) (*factory.Contract, error) {
	var row models.Contract
	err := r.db.GetContext(ctx, &row,
		`SELECT `+contractColumns+` FROM contracts WHERE address = $1`, addr.Hex())
	if err == sql.ErrNoRows {
		return nil, factory.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return row.ToFactory(), nil
}

// ListByOwner lists an owner's contracts in creation order
func (r *ContractRepository) ListByOwner(ctx context.Context, owner common.Address) ([]*factory.Contract, error) {
	var rows []*models.Contract
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+contractColumns+` FROM contracts WHERE owner_address = $1 ORDER BY sequence`, owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts by owner: %w", err)
	}
	return toFactory(rows), nil
}

// List lists contracts after the given sequence in creation order. Sequences
// are stored as BIGINT, so a cursor beyond MaxInt64 is past every row.
func (r *ContractRepository) List(ctx context.Context, after uint64, limit int) ([]*factory.Contract, error) {
	if after > math.MaxInt64 {
		return []*factory.Contract{}, nil
	}
	var rows []*models.Contract
	var err error
	if limit > 0 {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+contractColumns+` FROM contracts WHERE sequence > $1 ORDER BY sequence LIMIT $2`, int64(after), limit)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+contractColumns+` FROM contracts WHERE sequence > $1 ORDER BY sequence`, int64(after))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return toFactory(rows), nil
}

// Count returns the number of stored contracts
func (r *ContractRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM contracts`); err != nil {
		return 0, fmt.Errorf("failed to count contracts: %w", err)
	}
	return n, nil
}

func toFactory(rows []*models.Contract) []*factory.Contract {
	out := make([]*factory.Contract, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToFactory())
	}
	return out
}
