package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type GenerateRequest struct {
	SalesOrderID     snowflake.ID   `json:"sales_order_id"`
	PaymentRemainIDs []snowflake.ID `json:"payment_remain_ids"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListDetails(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceDetail, error)
	ListByOrder(ctx context.Context, db *gorm.DB, salesOrderID snowflake.ID) ([]Invoice, error)
	CountByOrder(ctx context.Context, db *gorm.DB, salesOrderID snowflake.ID) (int64, error)
	// InvoicedNotes returns the subset of noteIDs already on an invoice.
	InvoicedNotes(ctx context.Context, db *gorm.DB, noteIDs []snowflake.ID) (map[snowflake.ID]struct{}, error)
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (*Invoice, error)
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ListByOrder(ctx context.Context, salesOrderID snowflake.ID) ([]Invoice, error)
	Render(ctx context.Context, id snowflake.ID) ([]byte, string, error)
}

var (
	ErrInvalidSalesOrder = errors.New("invalid_sales_order")
	ErrDuplicatePayment  = errors.New("duplicate_payment")

	ErrInvoiceNotFound = errors.New("invoice_not_found")

	ErrPaymentMissing         = errors.New("payment_missing")
	ErrPaymentNotEligible     = errors.New("payment_not_eligible")
	ErrNoEligibleDeliveries   = errors.New("no_eligible_deliveries")
	ErrTargetNotEligible      = errors.New("target_delivery_not_eligible")
	ErrOverAllocated          = errors.New("over_allocated")
	ErrDeliveryAlreadyInvoice = errors.New("delivery_already_invoiced")

	ErrRendererNotConfigured = errors.New("renderer_not_configured")
	ErrRenderTimeout         = errors.New("render_timeout")
)
