package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/pkg/db/pagination"
	"gorm.io/gorm"
)

type ItemRequest struct {
	LotID    snowflake.ID `json:"lot_id"`
	Quantity int64        `json:"quantity"`
}

type CreateRequest struct {
	CustomerID snowflake.ID  `json:"customer_id"`
	Items      []ItemRequest `json:"items"`
	ExpiredAt  *time.Time    `json:"expired_at,omitempty"`
}

type ListRequest struct {
	pagination.Pagination
	CustomerID snowflake.ID
	Status     Status
}

type ListResponse struct {
	pagination.PageInfo
	SalesOrders []*SalesOrder `json:"sales_orders"`
}

type ListFilter struct {
	CustomerID snowflake.ID
	Status     Status
	BeforeID   snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *SalesOrder) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*SalesOrder, error)
	ListDetails(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]SalesOrderDetail, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*SalesOrder, error)
	Update(ctx context.Context, db *gorm.DB, order *SalesOrder) error
	SumConfirmedPayments(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*SalesOrder, error)
	Submit(ctx context.Context, id snowflake.ID) (*SalesOrder, error)
	Approve(ctx context.Context, id snowflake.ID) (*SalesOrder, error)
	Reject(ctx context.Context, id snowflake.ID, reason string) (*SalesOrder, error)
	Get(ctx context.Context, id snowflake.ID) (*SalesOrder, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)

	// Lock loads the order under a row lock inside tx.
	Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*SalesOrder, error)
	// LockApproved loads the order under a row lock inside tx and fails unless
	// it is approved and not yet fully paid.
	LockApproved(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*SalesOrder, error)
	// RecomputePaymentStatus rederives paid_amount and payment_status from
	// confirmed payments. It is a no-op unless the order is approved.
	RecomputePaymentStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*SalesOrder, error)
}

var (
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidItems         = errors.New("invalid_items")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrDuplicateLot         = errors.New("duplicate_lot")
	ErrInsufficientStock    = errors.New("insufficient_stock")
	ErrLotExpired           = errors.New("lot_expired")
	ErrInvalidExpiry        = errors.New("invalid_expiry")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrRejectReasonRequired = errors.New("reject_reason_required")

	ErrOrderNotFound = errors.New("sales_order_not_found")

	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrOrderNotApproved  = errors.New("sales_order_not_approved")
	ErrOrderAlreadyPaid  = errors.New("sales_order_already_paid")

	// ErrOrderExpired is a state error that callers surface as a validation failure.
	ErrOrderExpired = errors.New("sales_order_expired")
)
