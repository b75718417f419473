package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
)

type CheckStatus string

const (
	CheckStatusPending  CheckStatus = "PENDING"
	CheckStatusApproved CheckStatus = "APPROVED"
	CheckStatusRejected CheckStatus = "REJECTED"
)

// DepositCheck is a customer's claim of an offline payment awaiting review.
type DepositCheck struct {
	ID               snowflake.ID                `json:"id" gorm:"primaryKey"`
	SalesOrderID     snowflake.ID                `json:"sales_order_id" gorm:"not null;index"`
	RequestedAmount  int64                       `json:"requested_amount" gorm:"not null"`
	PaymentMethod    paymentdomain.PaymentMethod `json:"payment_method" gorm:"type:text;not null"`
	PaymentType      paymentdomain.PaymentType   `json:"payment_type" gorm:"type:text;not null"`
	GoodsIssueNoteID *snowflake.ID               `json:"goods_issue_note_id,omitempty"`
	Note             string                      `json:"note" gorm:"type:text"`
	Status           CheckStatus                 `json:"status" gorm:"type:text;not null"`
	RequestedBy      string                      `json:"requested_by" gorm:"type:text;not null"`
	RequestedAt      time.Time                   `json:"requested_at" gorm:"not null"`
	ReviewedBy       *string                     `json:"reviewed_by,omitempty" gorm:"type:text"`
	ReviewedAt       *time.Time                  `json:"reviewed_at,omitempty"`
	RejectReason     *string                     `json:"reject_reason,omitempty" gorm:"type:text"`
	PaymentRemainID  *snowflake.ID               `json:"payment_remain_id,omitempty"`
}

func (DepositCheck) TableName() string { return "sales_order_deposit_checks" }
