package store

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	"pdvsystem/backend/internal/domain"
)

// Error kinds. Every error returned by a store or the service matches at most
// one of these through errors.Is.
var (
	ErrInvalid     = errors.New("invalid request")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrConsistency = errors.New("consistency failure")
)

var (
	ErrInsufficientStock  = kind(ErrConflict, "insufficient stock")
	ErrSessionAlreadyOpen = kind(ErrConflict, "a cashier session is already open for this terminal")
	ErrNoOpenSession      = kind(ErrConflict, "no open cashier session for this terminal")
	ErrProductInUse       = kind(ErrConflict, "product has sales history")
	ErrUserInUse          = kind(ErrConflict, "user has sessions or sales")
	ErrDuplicate          = kind(ErrConflict, "duplicate value")
)

type kindError struct {
	kind error
	msg  string
}

func kind(k error, msg string) error {
	return &kindError{kind: k, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

// ConsistencyError reports a storage-level failure of a transactional unit:
// a lock wait timeout, a serialization failure or deadlock, or a constraint
// violation detected only at write time.
type ConsistencyError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *ConsistencyError) Error() string {
	if e.Err == nil {
		return e.Op + ": consistency failure"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

// IsRetryable reports whether err is a consistency failure worth retrying.
func IsRetryable(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce) && ce.Retryable
}

// Transactor runs fn inside one storage transaction. A nil return commits;
// any error rolls back every write made through tx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side of the store. Methods named ForUpdate take row locks
// that are held until the transaction ends.
type Tx interface {
	FindOpenSessionForUpdate(ctx context.Context, terminalID string) (*domain.CashierSession, error)
	CreateSession(ctx context.Context, session domain.CashierSession) error
	CloseSession(ctx context.Context, sessionID string, finalBalance decimal.Decimal, at time.Time) (*domain.CashierSession, error)

	// LockProducts locks the given products in ascending id order and returns
	// the ones that exist.
	LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error)
	SetProductStock(ctx context.Context, id string, qty decimal.Decimal) error
	InsertProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	ProductHasSales(ctx context.Context, id string) (bool, error)
	// DeleteProduct removes the product together with its ledger rows.
	DeleteProduct(ctx context.Context, id string) error

	InsertMovement(ctx context.Context, movement domain.StockMovement) error
	InsertSale(ctx context.Context, sale domain.Sale) error

	GetUserForUpdate(ctx context.Context, id string) (*domain.UserAccount, error)
	InsertUser(ctx context.Context, user domain.UserAccount) error
	UpdateUser(ctx context.Context, user domain.UserAccount) error
	UserHasHistory(ctx context.Context, id string) (bool, error)
	DeleteUser(ctx context.Context, id string) error

	// ReplaceAll wipes every table and loads snapshot in dependency order.
	ReplaceAll(ctx context.Context, snapshot domain.Snapshot) error
}

type Repository interface {
	Transactor

	GetOpenSession(ctx context.Context, terminalID string) (*domain.CashierSession, error)
	SumCompletedSales(ctx context.Context, sessionID string) (decimal.Decimal, error)
	ListSessionsStartedBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.CashierSession, error)
	ListSalesBySession(ctx context.Context, sessionID string) ([]domain.Sale, error)
	SalesSummary(ctx context.Context, from time.Time, to time.Time) (decimal.Decimal, int, error)
	TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error)

	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	FindProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)

	// ListMovements yields ledger rows newest first, stopping at the first error.
	ListMovements(ctx context.Context, filter domain.MovementFilter) iter.Seq2[domain.MovementRecord, error]

	GetUser(ctx context.Context, id string) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]domain.UserAccount, error)

	Snapshot(ctx context.Context) (domain.Snapshot, error)
	Stats(ctx context.Context) (domain.SnapshotStats, error)
}
