package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"gorm.io/gorm"
)

type SubmitRequest struct {
	SalesOrderID     snowflake.ID                `json:"-"`
	RequestedAmount  int64                       `json:"requested_amount"`
	PaymentMethod    paymentdomain.PaymentMethod `json:"payment_method"`
	PaymentType      paymentdomain.PaymentType   `json:"payment_type"`
	GoodsIssueNoteID *snowflake.ID               `json:"goods_issue_note_id,omitempty"`
	Note             string                      `json:"note"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, check *DepositCheck) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*DepositCheck, error)
	HasPending(ctx context.Context, db *gorm.DB, salesOrderID snowflake.ID) (bool, error)
	ListByOrder(ctx context.Context, db *gorm.DB, salesOrderID snowflake.ID) ([]DepositCheck, error)
	// Review finalizes a PENDING check and reports whether it did.
	Review(ctx context.Context, db *gorm.DB, check *DepositCheck) (bool, error)
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*DepositCheck, error)
	Approve(ctx context.Context, id snowflake.ID) (*DepositCheck, error)
	Reject(ctx context.Context, id snowflake.ID, reason string) (*DepositCheck, error)
	Get(ctx context.Context, id snowflake.ID) (*DepositCheck, error)
	List(ctx context.Context, salesOrderID snowflake.ID) ([]DepositCheck, error)
}

var (
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidPaymentType   = errors.New("invalid_payment_type")
	ErrInvalidGoodsIssue    = errors.New("invalid_goods_issue_note")
	ErrRejectReasonRequired = errors.New("reject_reason_required")

	ErrCheckNotFound = errors.New("deposit_check_not_found")

	ErrAmountExceedsDebt  = errors.New("amount_exceeds_debt")
	ErrPendingCheckExists = errors.New("pending_deposit_check_exists")
	ErrCheckNotPending    = errors.New("deposit_check_not_pending")
)
