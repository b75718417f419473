package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type OpenRequest struct {
	SalesOrderID snowflake.ID
	CustomerID   snowflake.ID
	Amount       int64
}

type ReduceRequest struct {
	SalesOrderID snowflake.ID
	Amount       int64
	SourceType   SourceType
	SourceID     snowflake.ID
}

// ReduceResult reports Applied=false when the source had already been posted.
type ReduceResult struct {
	Applied bool
	Balance int64
	Status  DebtStatus
}

type DisableRequest struct {
	SalesOrderID snowflake.ID
	SourceType   SourceType
	SourceID     snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, debt *CustomerDebt) (bool, error)
	FindBySalesOrder(ctx context.Context, db *gorm.DB, salesOrderID snowflake.ID, lock bool) (*CustomerDebt, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, debt *CustomerDebt) error
	InsertEntry(ctx context.Context, db *gorm.DB, entry *DebtEntry) (bool, error)
	EntryExists(ctx context.Context, db *gorm.DB, sourceType SourceType, sourceID snowflake.ID) (bool, error)
	ListEntries(ctx context.Context, db *gorm.DB, debtID snowflake.ID) ([]DebtEntry, error)
}

// Service mutates the debt ledger. Every mutation runs on the caller's
// transaction handle so it commits or rolls back with the business change.
type Service interface {
	Open(ctx context.Context, tx *gorm.DB, req OpenRequest) (*CustomerDebt, error)
	Reduce(ctx context.Context, tx *gorm.DB, req ReduceRequest) (ReduceResult, error)
	Disable(ctx context.Context, tx *gorm.DB, req DisableRequest) error
	Outstanding(ctx context.Context, tx *gorm.DB, salesOrderID snowflake.ID) (*CustomerDebt, error)
	GetBySalesOrder(ctx context.Context, salesOrderID snowflake.ID) (*CustomerDebt, []DebtEntry, error)
}

var (
	ErrTransactionRequired = errors.New("ledger_transaction_required")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidSource       = errors.New("invalid_source")
	ErrDebtNotFound        = errors.New("debt_not_found")
	ErrDebtAlreadyOpen     = errors.New("debt_already_open")
	ErrDebtDisabled        = errors.New("debt_disabled")
	ErrAmountExceedsDebt   = errors.New("amount_exceeds_debt")
)
