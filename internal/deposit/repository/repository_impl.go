package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/deposit/domain"
	"github.com/smallbiznis/pharmasettle/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, check *domain.DepositCheck) error {
	err := tx.WithContext(ctx).Create(check).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrPendingCheckExists
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID, lock bool) (*domain.DepositCheck, error) {
	q := tx.WithContext(ctx)
	if lock {
		q = db.ForUpdate(q)
	}
	var check domain.DepositCheck
	err := q.Where("id = ?", id).Take(&check).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &check, nil
}

func (r *repo) HasPending(ctx context.Context, tx *gorm.DB, salesOrderID snowflake.ID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&domain.DepositCheck{}).
		Where("sales_order_id = ? AND status = ?", salesOrderID, domain.CheckStatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListByOrder(ctx context.Context, tx *gorm.DB, salesOrderID snowflake.ID) ([]domain.DepositCheck, error) {
	var checks []domain.DepositCheck
	err := tx.WithContext(ctx).
		Where("sales_order_id = ?", salesOrderID).
		Order("requested_at DESC, id DESC").
		Find(&checks).Error
	if err != nil {
		return nil, err
	}
	return checks, nil
}

func (r *repo) Review(ctx context.Context, tx *gorm.DB, check *domain.DepositCheck) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE sales_order_deposit_checks
		 SET status = ?, reviewed_by = ?, reviewed_at = ?, reject_reason = ?, payment_remain_id = ?
		 WHERE id = ? AND status = ?`,
		check.Status,
		check.ReviewedBy,
		check.ReviewedAt,
		check.RejectReason,
		check.PaymentRemainID,
		check.ID,
		domain.CheckStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
