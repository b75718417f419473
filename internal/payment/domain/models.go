package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PaymentType string

const (
	PaymentTypeDeposit PaymentType = "DEPOSIT"
	PaymentTypeRemain  PaymentType = "REMAIN"
	PaymentTypeFull    PaymentType = "FULL"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeDeposit, PaymentTypeRemain, PaymentTypeFull:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodVNPay        PaymentMethod = "VNPAY"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCash         PaymentMethod = "CASH"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodVNPay, PaymentMethodBankTransfer, PaymentMethodCash:
		return true
	default:
		return false
	}
}

type GatewayStatus string

const (
	GatewayStatusPending GatewayStatus = "PENDING"
	GatewayStatusSuccess GatewayStatus = "SUCCESS"
	GatewayStatusFailed  GatewayStatus = "FAILED"
)

// PaymentRemain is one payment attempt against a sales order. It is
// immutable once SUCCESS, apart from being attached to an invoice.
type PaymentRemain struct {
	ID                  snowflake.ID  `json:"id" gorm:"primaryKey"`
	SalesOrderID        snowflake.ID  `json:"sales_order_id" gorm:"not null;index"`
	InvoiceID           *snowflake.ID `json:"invoice_id,omitempty" gorm:"index"`
	GoodsIssueNoteID    *snowflake.ID `json:"goods_issue_note_id,omitempty"`
	PaymentType         PaymentType   `json:"payment_type" gorm:"type:text;not null"`
	PaymentMethod       PaymentMethod `json:"payment_method" gorm:"type:text;not null"`
	Amount              int64         `json:"amount" gorm:"not null"`
	RequestedAt         time.Time     `json:"requested_at" gorm:"not null"`
	PaidAt              *time.Time    `json:"paid_at,omitempty"`
	GatewayStatus       GatewayStatus `json:"gateway_status" gorm:"type:text;not null;index"`
	GatewayTxnRef       *string       `json:"gateway_txn_ref,omitempty" gorm:"type:text;uniqueIndex"`
	BankTransactionNo   *string       `json:"bank_transaction_no,omitempty" gorm:"type:text"`
	GatewayResponseCode *string       `json:"gateway_response_code,omitempty" gorm:"type:text"`
	RejectReason        *string       `json:"reject_reason,omitempty" gorm:"type:text"`
	DepositCheckID      *snowflake.ID `json:"deposit_check_id,omitempty"`
	CreatedAt           time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time     `json:"updated_at" gorm:"not null"`
}

func (PaymentRemain) TableName() string { return "payment_remains" }

type CallbackOutcome string

const (
	CallbackOutcomeConfirmed        CallbackOutcome = "confirmed"
	CallbackOutcomeFailed           CallbackOutcome = "failed"
	CallbackOutcomeAlreadyConfirmed CallbackOutcome = "already_confirmed"
	CallbackOutcomeAmountMismatch   CallbackOutcome = "amount_mismatch"
	CallbackOutcomeNotFound         CallbackOutcome = "not_found"
	CallbackOutcomeInvalidSignature CallbackOutcome = "invalid_signature"
	CallbackOutcomeError            CallbackOutcome = "error"
)

// GatewayCallback is the raw record of a verified gateway callback.
type GatewayCallback struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	TxnRef       string          `json:"txn_ref" gorm:"type:text;not null;index"`
	ResponseCode string          `json:"response_code" gorm:"type:text"`
	Payload      datatypes.JSON  `json:"payload" gorm:"not null"`
	Outcome      CallbackOutcome `json:"outcome" gorm:"type:text;not null"`
	ReceivedAt   time.Time       `json:"received_at" gorm:"not null"`
}

func (GatewayCallback) TableName() string { return "payment_gateway_callbacks" }
