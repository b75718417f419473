package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type DebtStatus string

const (
	DebtStatusUnpaid   DebtStatus = "UNPAID"
	DebtStatusDisabled DebtStatus = "DISABLED"
)

type EntryKind string

const (
	EntryKindOpen    EntryKind = "OPEN"
	EntryKindReduce  EntryKind = "REDUCE"
	EntryKindDisable EntryKind = "DISABLE"
)

type SourceType string

const (
	// ======================
	// Order lifecycle
	// ======================
	SourceTypeOrderApproval SourceType = "sales_order_approval"
	SourceTypeOrderReject   SourceType = "sales_order_reject"
	SourceTypeOrderPaid     SourceType = "sales_order_paid"

	// ======================
	// Settlement
	// ======================
	SourceTypePayment SourceType = "payment_remain"
)

// CustomerDebt is the single outstanding obligation of an approved order.
type CustomerDebt struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	SalesOrderID snowflake.ID `json:"sales_order_id" gorm:"not null;uniqueIndex"`
	CustomerID   snowflake.ID `json:"customer_id" gorm:"not null;index"`
	DebtAmount   int64        `json:"debt_amount" gorm:"not null"`
	Status       DebtStatus   `json:"status" gorm:"type:text;not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (CustomerDebt) TableName() string { return "customer_debts" }

// DebtEntry journals every mutation of a CustomerDebt. A source can post at most once.
type DebtEntry struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	DebtID       snowflake.ID `json:"debt_id" gorm:"not null;index"`
	SalesOrderID snowflake.ID `json:"sales_order_id" gorm:"not null;index"`
	Kind         EntryKind    `json:"kind" gorm:"type:text;not null"`
	SourceType   SourceType   `json:"source_type" gorm:"type:text;not null;uniqueIndex:ux_debt_entries_source"`
	SourceID     snowflake.ID `json:"source_id" gorm:"not null;uniqueIndex:ux_debt_entries_source"`
	Amount       int64        `json:"amount" gorm:"not null"`
	BalanceAfter int64        `json:"balance_after" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
}

func (DebtEntry) TableName() string { return "customer_debt_entries" }
