package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusSend     Status = "SEND"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "UNPAID"
	PaymentStatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentStatusPaid          PaymentStatus = "PAID"
)

// Rank orders payment statuses so a recompute can never move backwards.
func (p PaymentStatus) Rank() int {
	switch p {
	case PaymentStatusPartiallyPaid:
		return 1
	case PaymentStatusPaid:
		return 2
	default:
		return 0
	}
}

// DerivePaymentStatus maps a paid amount against the order total.
func DerivePaymentStatus(paid, total int64) PaymentStatus {
	switch {
	case paid > 0 && paid >= total:
		return PaymentStatusPaid
	case paid > 0:
		return PaymentStatusPartiallyPaid
	default:
		return PaymentStatusUnpaid
	}
}

type SalesOrder struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	Code          string        `json:"code" gorm:"type:text;not null;uniqueIndex"`
	CustomerID    snowflake.ID  `json:"customer_id" gorm:"not null;index"`
	CreatedBy     string        `json:"created_by" gorm:"type:text;not null"`
	Status        Status        `json:"status" gorm:"type:text;not null;index"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"type:text;not null"`
	TotalPrice    int64         `json:"total_price" gorm:"not null"`
	PaidAmount    int64         `json:"paid_amount" gorm:"not null;default:0"`
	PaidFullAt    *time.Time    `json:"paid_full_at,omitempty"`
	ExpiredAt     time.Time     `json:"expired_at" gorm:"not null"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
	ApprovedBy    *string       `json:"approved_by,omitempty" gorm:"type:text"`
	ApprovedAt    *time.Time    `json:"approved_at,omitempty"`
	RejectedBy    *string       `json:"rejected_by,omitempty" gorm:"type:text"`
	RejectedAt    *time.Time    `json:"rejected_at,omitempty"`
	RejectReason  *string       `json:"reject_reason,omitempty" gorm:"type:text"`
	Version       int64         `json:"version" gorm:"not null;default:1"`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"not null"`

	Details []SalesOrderDetail `json:"details,omitempty" gorm:"-"`
}

func (SalesOrder) TableName() string { return "sales_orders" }

type SalesOrderDetail struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	SalesOrderID snowflake.ID `json:"sales_order_id" gorm:"not null;index"`
	LotID        snowflake.ID `json:"lot_id" gorm:"not null"`
	Quantity     int64        `json:"quantity" gorm:"not null"`
	UnitPrice    int64        `json:"unit_price" gorm:"not null"`
	Subtotal     int64        `json:"subtotal" gorm:"not null"`
}

func (SalesOrderDetail) TableName() string { return "sales_order_details" }
