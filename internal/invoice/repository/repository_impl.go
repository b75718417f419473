package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/invoice/domain"
	"github.com/smallbiznis/pharmasettle/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice) error {
	if err := tx.WithContext(ctx).Create(invoice).Error; err != nil {
		return err
	}
	if len(invoice.Details) == 0 {
		return nil
	}
	err := tx.WithContext(ctx).Create(&invoice.Details).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDeliveryAlreadyInvoice
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := tx.WithContext(ctx).Where("id = ?", id).Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) ListDetails(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceDetail, error) {
	var details []domain.InvoiceDetail
	err := tx.WithContext(ctx).Raw(
		`SELECT d.*
		 FROM invoice_details d
		 JOIN goods_issue_notes n ON n.id = d.goods_issue_note_id
		 WHERE d.invoice_id = ?
		 ORDER BY n.delivered_at ASC, n.id ASC`,
		invoiceID,
	).Scan(&details).Error
	if err != nil {
		return nil, err
	}
	return details, nil
}

func (r *repo) ListByOrder(ctx context.Context, tx *gorm.DB, salesOrderID snowflake.ID) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := tx.WithContext(ctx).
		Where("sales_order_id = ?", salesOrderID).
		Order("issued_at ASC, id ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) CountByOrder(ctx context.Context, tx *gorm.DB, salesOrderID snowflake.ID) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("sales_order_id = ?", salesOrderID).
		Count(&count).Error
	return count, err
}

func (r *repo) InvoicedNotes(ctx context.Context, tx *gorm.DB, noteIDs []snowflake.ID) (map[snowflake.ID]struct{}, error) {
	out := make(map[snowflake.ID]struct{})
	if len(noteIDs) == 0 {
		return out, nil
	}
	var ids []snowflake.ID
	err := tx.WithContext(ctx).
		Model(&domain.InvoiceDetail{}).
		Where("goods_issue_note_id IN ?", noteIDs).
		Pluck("goods_issue_note_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
