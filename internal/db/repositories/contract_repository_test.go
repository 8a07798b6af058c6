package repositories

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/contract-factory/contract-factory/internal/factory"
)

var errContractDB = errors.New("db error")

var (
	testFactory = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testOwner   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	testChild   = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newContractRepo(t *testing.T) (*ContractRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewContractRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var contractCols = []string{
	"address", "factory_address", "owner_address", "name", "symbol", "sequence", "created_at",
}

func sampleContractRow(seq int64) *sqlmock.Rows {
	return sqlmock.NewRows(contractCols).
		AddRow(testChild.Hex(), testFactory.Hex(), testOwner.Hex(), "Some Name", "TTT", seq, time.Now())
}

func buildChild(seq uint64) (*factory.Contract, error) {
	return factory.NewContract(factory.ContractSpec{
		Address:   testChild,
		Factory:   testFactory,
		Owner:     testOwner,
		Name:      "Some Name",
		Symbol:    "TTT",
		Sequence:  seq,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}), nil
}

// ---------------------------------------------------------------------------
// Insert
// ---------------------------------------------------------------------------

func TestContractInsert_Success(t *testing.T) {
	repo, mock := newContractRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nonce FROM factory_state WHERE id = 1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"nonce"}).AddRow(int64(4)))
	mock.ExpectExec("INSERT INTO contracts").
		WithArgs(testChild.Hex(), testFactory.Hex(), testOwner.Hex(), "Some Name", "TTT", int64(5), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE factory_state SET nonce").
		WithArgs(int64(5), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, err := repo.Insert(context.Background(), buildChild)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Sequence() != 5 {
		t.Errorf("Sequence() = %d, want 5", c.Sequence())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestContractInsert_BeginError(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectBegin().WillReturnError(errContractDB)

	if _, err := repo.Insert(context.Background(), buildChild); err == nil {
		t.Error("expected error from Begin")
	}
}

func TestContractInsert_LockError(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nonce FROM factory_state").WillReturnError(errContractDB)
	mock.ExpectRollback()

	if _, err := repo.Insert(context.Background(), buildChild); !errors.Is(err, errContractDB) {
		t.Errorf("expected wrapped db error, got %v", err)
	}
}

func TestContractInsert_BuildError(t *testing.T) {
	repo, mock := newContractRepo(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nonce FROM factory_state").
		WillReturnRows(sqlmock.NewRows([]string{"nonce"}).AddRow(int64(0)))
	mock.ExpectRollback()

	_, err := repo.Insert(context.Background(), func(uint64) (*factory.Contract, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected build error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestContractInsert_DuplicateAddress(t *testing.T) {
	repo, mock := newContractRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nonce FROM factory_state").
		WillReturnRows(sqlmock.NewRows([]string{"nonce"}).AddRow(int64(0)))
	mock.ExpectExec("INSERT INTO contracts").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	if _, err := repo.Insert(context.Background(), buildChild); !errors.Is(err, factory.ErrDuplicateAddress) {
		t.Errorf("expected ErrDuplicateAddress, got %v", err)
	}
}

func TestContractInsert_NonceUpdateError(t *testing.T) {
	repo, mock := newContractRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nonce FROM factory_state").
		WillReturnRows(sqlmock.NewRows([]string{"nonce"}).AddRow(int64(0)))
	mock.ExpectExec("INSERT INTO contracts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE factory_state").WillReturnError(errContractDB)
	mock.ExpectRollback()

	if _, err := repo.Insert(context.Background(), buildChild); err == nil {
		t.Error("expected error from nonce update")
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestContractGet_Found(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectQuery("SELECT .* FROM contracts WHERE address = \\$1").
		WithArgs(testChild.Hex()).
		WillReturnRows(sampleContractRow(1))

	c, err := repo.Get(context.Background(), testChild)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Owner() != testOwner {
		t.Errorf("Owner() = %s, want %s", c.Owner().Hex(), testOwner.Hex())
	}
	if c.Name() != "Some Name" || c.Symbol() != "TTT" {
		t.Errorf("labels = (%q, %q), want (Some Name, TTT)", c.Name(), c.Symbol())
	}
}

func TestContractGet_NotFound(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectQuery("SELECT .* FROM contracts WHERE address").
		WillReturnRows(sqlmock.NewRows(contractCols))

	if _, err := repo.Get(context.Background(), testChild); !errors.Is(err, factory.ErrContractNotFound) {
		t.Errorf("expected ErrContractNotFound, got %v", err)
	}
}

func TestContractGet_Error(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectQuery("SELECT .* FROM contracts WHERE address").WillReturnError(errContractDB)

	_, err := repo.Get(context.Background(), testChild)
	if err == nil || errors.Is(err, factory.ErrContractNotFound) {
		t.Errorf("expected db error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// ListByOwner / List / Count
// ---------------------------------------------------------------------------

func TestContractListByOwner(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectQuery("SELECT .* FROM contracts WHERE owner_address = \\$1 ORDER BY sequence").
		WithArgs(testOwner.Hex()).
		WillReturnRows(sampleContractRow(1))

	list, err := repo.ListByOwner(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].Address() != testChild {
		t.Errorf("ListByOwner() = %v", list)
	}
}

func TestContractListByOwner_Empty(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectQuery("SELECT .* FROM contracts WHERE owner_address").
		WillReturnRows(sqlmock.NewRows(contractCols))

	list, err := repo.ListByOwner(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", list)
	}
}

func TestContractList_WithLimit(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectQuery("SELECT .* FROM contracts WHERE sequence > \\$1 ORDER BY sequence LIMIT \\$2").
		WithArgs(int64(3), 2).
		WillReturnRows(sampleContractRow(4))

	list, err := repo.List(context.Background(), 3, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].Sequence() != 4 {
		t.Errorf("List() = %v", list)
	}
}

func TestContractList_Unlimited(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectQuery("SELECT .* FROM contracts WHERE sequence > \\$1 ORDER BY sequence$").
		WithArgs(int64(0)).
		WillReturnRows(sampleContractRow(1))

	if _, err := repo.List(context.Background(), 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestContractList_CursorBeyondInt64(t *testing.T) {
	repo, mock := newContractRepo(t)

	for _, after := range []uint64{math.MaxInt64 + 1, math.MaxUint64} {
		list, err := repo.List(context.Background(), after, 100)
		if err != nil {
			t.Fatalf("List(%d) unexpected error: %v", after, err)
		}
		if list == nil || len(list) != 0 {
			t.Errorf("List(%d) = %#v, want empty non-nil", after, list)
		}
	}
	// No query may run: the cursor must not wrap to a negative bind value.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestContractList_CursorAtInt64Max(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectQuery("SELECT .* FROM contracts WHERE sequence > \\$1 ORDER BY sequence LIMIT \\$2").
		WithArgs(int64(math.MaxInt64), 10).
		WillReturnRows(sqlmock.NewRows(contractCols))

	list, err := repo.List(context.Background(), math.MaxInt64, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() = %v, want empty", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestContractList_Error(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectQuery("SELECT .* FROM contracts").WillReturnError(errContractDB)

	if _, err := repo.List(context.Background(), 0, 10); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestContractCount(t *testing.T) {
	repo, mock := newContractRepo(t)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("Count() = %d, want 7", n)
	}
}
