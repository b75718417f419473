// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
)

type InvoiceStatus string

const (
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
)

// Invoice settles a batch of deliveries against the payments selected for it.
type Invoice struct {
	ID            snowflake.ID                   `json:"id" gorm:"primaryKey"`
	SalesOrderID  snowflake.ID                   `json:"sales_order_id" gorm:"not null;index"`
	Code          string                         `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Status        InvoiceStatus                  `json:"status" gorm:"type:text;not null"`
	PaymentStatus salesorderdomain.PaymentStatus `json:"payment_status" gorm:"type:text;not null"`
	TotalAmount   int64                          `json:"total_amount" gorm:"not null"`
	TotalPaid     int64                          `json:"total_paid" gorm:"not null"`
	TotalDeposit  int64                          `json:"total_deposit" gorm:"not null"`
	TotalRemain   int64                          `json:"total_remain" gorm:"not null"`
	IssuedAt      time.Time                      `json:"issued_at" gorm:"not null"`
	CreatedAt     time.Time                      `json:"created_at" gorm:"not null"`

	Details []InvoiceDetail `json:"details,omitempty" gorm:"-"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceDetail is one delivery's share of an invoice. A goods-issue note
// appears on at most one invoice.
type InvoiceDetail struct {
	InvoiceID        snowflake.ID `json:"invoice_id" gorm:"primaryKey"`
	GoodsIssueNoteID snowflake.ID `json:"goods_issue_note_id" gorm:"primaryKey;uniqueIndex:ux_invoice_details_note"`
	GoodsIssueAmount int64        `json:"goods_issue_amount" gorm:"not null"`
	AllocatedDeposit int64        `json:"allocated_deposit" gorm:"not null"`
	PaidRemain       int64        `json:"paid_remain" gorm:"not null"`
	TotalPaidForNote int64        `json:"total_paid_for_note" gorm:"not null"`
	NoteBalance      int64        `json:"note_balance" gorm:"not null"`
}

func (InvoiceDetail) TableName() string { return "invoice_details" }
