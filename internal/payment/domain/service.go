package domain

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CreatePaymentRequest starts a gateway payment. PaymentType is DEPOSIT or FULL.
type CreatePaymentRequest struct {
	SalesOrderID snowflake.ID `json:"sales_order_id"`
	PaymentType  PaymentType  `json:"payment_type"`
	ClientIP     string       `json:"-"`
}

type CheckoutResponse struct {
	PaymentID      snowflake.ID `json:"payment_id"`
	PaymentURL     string       `json:"paymentUrl"`
	QRImageDataURL string       `json:"qrImageDataUrl"`
	Amount         int64        `json:"amount"`
	TxnRef         string       `json:"txnRef"`
	ExpireAt       time.Time    `json:"expireAt"`
}

// ConfirmedPayment is an offline payment that was verified by a reviewer.
type ConfirmedPayment struct {
	SalesOrderID     snowflake.ID
	PaymentType      PaymentType
	PaymentMethod    PaymentMethod
	Amount           int64
	GoodsIssueNoteID *snowflake.ID
	DepositCheckID   *snowflake.ID
	RequestedAt      time.Time
}

// Gateway acknowledgement codes.
const (
	RspCodeConfirmed        = "00"
	RspCodeNotFound         = "01"
	RspCodeAlreadyConfirmed = "02"
	RspCodeInvalidAmount    = "04"
	RspCodeInvalidSignature = "97"
	RspCodeUnknownError     = "99"
)

// CallbackResponse is the body the gateway expects back from the IPN endpoint.
type CallbackResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

type ReturnResult struct {
	TxnRef        string        `json:"txn_ref"`
	SalesOrderID  snowflake.ID  `json:"sales_order_id"`
	Amount        int64         `json:"amount"`
	GatewayStatus GatewayStatus `json:"gateway_status"`
	ResponseCode  string        `json:"response_code"`
	Succeeded     bool          `json:"succeeded"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *PaymentRemain) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRemain, error)
	FindByTxnRef(ctx context.Context, db *gorm.DB, txnRef string, lock bool) (*PaymentRemain, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID, lock bool) ([]PaymentRemain, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]PaymentRemain, error)
	// ListStalePending returns gateway records still PENDING that were requested before the cutoff.
	ListStalePending(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]PaymentRemain, error)
	// Settle moves a PENDING record to its final state and reports whether it did.
	Settle(ctx context.Context, db *gorm.DB, payment *PaymentRemain) (bool, error)
	// AssignInvoice attaches unallocated SUCCESS records and returns how many it touched.
	AssignInvoice(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID, now time.Time) (int64, error)
	InsertCallback(ctx context.Context, db *gorm.DB, callback *GatewayCallback) error
}

type Service interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CheckoutResponse, error)
	HandleCallback(ctx context.Context, values url.Values) CallbackResponse
	VerifyReturn(ctx context.Context, values url.Values) (*ReturnResult, error)
	Get(ctx context.Context, id snowflake.ID) (*PaymentRemain, error)
	ListByOrder(ctx context.Context, orderID snowflake.ID) ([]PaymentRemain, error)
	// ExpireStale fails up to limit gateway records left PENDING since before
	// and returns how many it moved.
	ExpireStale(ctx context.Context, before time.Time, limit int) (int, error)

	// RecordConfirmed stores a SUCCESS payment, reduces the debt and
	// recomputes the order payment status, all on tx.
	RecordConfirmed(ctx context.Context, tx *gorm.DB, req ConfirmedPayment) (*PaymentRemain, error)
	// LockForAllocation loads and locks the given records on tx.
	LockForAllocation(ctx context.Context, tx *gorm.DB, ids []snowflake.ID) ([]PaymentRemain, error)
	AssignInvoice(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID) error
}

var (
	ErrInvalidPaymentType   = errors.New("invalid_payment_type")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrGatewayNotConfigured = errors.New("gateway_not_configured")

	ErrPaymentNotFound = errors.New("payment_not_found")

	ErrDepositAlreadyPaid = errors.New("deposit_already_paid")
	ErrNothingOutstanding = errors.New("nothing_outstanding")
	ErrPaymentNotPending  = errors.New("payment_not_pending")
	ErrPaymentAllocated   = errors.New("payment_already_allocated")
	ErrCallbackInProgress = errors.New("callback_in_progress")
)
