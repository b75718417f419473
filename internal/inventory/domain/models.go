package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Lot is a batch of a product with its own expiry and list price.
type Lot struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID  snowflake.ID `json:"product_id" gorm:"not null;index"`
	LotNumber  string       `json:"lot_number" gorm:"type:text;not null"`
	ExpiryDate time.Time    `json:"expiry_date" gorm:"not null"`
	Quantity   int64        `json:"quantity" gorm:"not null"`
	UnitPrice  int64        `json:"unit_price" gorm:"not null"`
}

func (Lot) TableName() string { return "inventory_lots" }

// GoodsIssueNote records one physical delivery against a sales order.
type GoodsIssueNote struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	SalesOrderID snowflake.ID `json:"sales_order_id" gorm:"not null;index"`
	Code         string       `json:"code" gorm:"type:text;not null"`
	DeliveredAt  time.Time    `json:"delivered_at" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
}

func (GoodsIssueNote) TableName() string { return "goods_issue_notes" }

type GoodsIssueNoteLine struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	GoodsIssueNoteID snowflake.ID `json:"goods_issue_note_id" gorm:"not null;index"`
	LotID            snowflake.ID `json:"lot_id" gorm:"not null"`
	Quantity         int64        `json:"quantity" gorm:"not null"`
	UnitPrice        int64        `json:"unit_price" gorm:"not null"`
}

func (GoodsIssueNoteLine) TableName() string { return "goods_issue_note_lines" }

// DeliveryAmount is a goods-issue note with the value of the goods it issued.
type DeliveryAmount struct {
	GoodsIssueNoteID snowflake.ID `json:"goods_issue_note_id"`
	Code             string       `json:"code"`
	DeliveredAt      time.Time    `json:"delivered_at"`
	Amount           int64        `json:"amount"`
}

// Provider is the read-only view of the inventory subsystem.
type Provider interface {
	GetLots(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]Lot, error)
	GetGoodsIssueNote(ctx context.Context, db *gorm.DB, id snowflake.ID) (*GoodsIssueNote, error)
	// ListDeliveries returns the order's notes ordered by delivery date then id.
	ListDeliveries(ctx context.Context, db *gorm.DB, salesOrderID snowflake.ID) ([]DeliveryAmount, error)
}

var (
	ErrLotNotFound            = errors.New("lot_not_found")
	ErrGoodsIssueNoteNotFound = errors.New("goods_issue_note_not_found")
)
