package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"github.com/smallbiznis/pharmasettle/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, order *domain.SalesOrder) error {
	if err := tx.WithContext(ctx).Create(order).Error; err != nil {
		return err
	}
	if len(order.Details) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&order.Details).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID, lock bool) (*domain.SalesOrder, error) {
	q := tx.WithContext(ctx)
	if lock {
		q = db.ForUpdate(q)
	}
	var order domain.SalesOrder
	err := q.Where("id = ?", id).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) ListDetails(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) ([]domain.SalesOrderDetail, error) {
	var details []domain.SalesOrderDetail
	err := tx.WithContext(ctx).
		Where("sales_order_id = ?", orderID).
		Order("id ASC").
		Find(&details).Error
	if err != nil {
		return nil, err
	}
	return details, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter domain.ListFilter) ([]*domain.SalesOrder, error) {
	stmt := tx.WithContext(ctx).Model(&domain.SalesOrder{})
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.BeforeID != 0 {
		stmt = stmt.Where("id < ?", filter.BeforeID)
	}

	var orders []*domain.SalesOrder
	if err := stmt.Order("id DESC").Limit(filter.Limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Update persists the mutable columns guarded by the version the caller read.
func (r *repo) Update(ctx context.Context, tx *gorm.DB, order *domain.SalesOrder) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE sales_orders
		 SET status = ?, payment_status = ?, paid_amount = ?, paid_full_at = ?,
			submitted_at = ?, approved_by = ?, approved_at = ?,
			rejected_by = ?, rejected_at = ?, reject_reason = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		order.Status,
		order.PaymentStatus,
		order.PaidAmount,
		order.PaidFullAt,
		order.SubmittedAt,
		order.ApprovedBy,
		order.ApprovedAt,
		order.RejectedBy,
		order.RejectedAt,
		order.RejectReason,
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.ErrConcurrentUpdate
	}
	order.Version++
	return nil
}

func (r *repo) SumConfirmedPayments(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (int64, error) {
	var total int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM payment_remains
		 WHERE sales_order_id = ? AND gateway_status = ?`,
		orderID,
		"SUCCESS",
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
