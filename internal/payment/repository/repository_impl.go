package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/smallbiznis/pharmasettle/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, payment *domain.PaymentRemain) error {
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.PaymentRemain, error) {
	var payment domain.PaymentRemain
	err := tx.WithContext(ctx).Where("id = ?", id).Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) FindByTxnRef(ctx context.Context, tx *gorm.DB, txnRef string, lock bool) (*domain.PaymentRemain, error) {
	q := tx.WithContext(ctx)
	if lock {
		q = db.ForUpdate(q)
	}
	var payment domain.PaymentRemain
	err := q.Where("gateway_txn_ref = ?", txnRef).Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) FindByIDs(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, lock bool) ([]domain.PaymentRemain, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := tx.WithContext(ctx)
	if lock {
		q = db.ForUpdate(q)
	}
	var payments []domain.PaymentRemain
	if err := q.Where("id IN ?", ids).Order("id ASC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) ListByOrder(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) ([]domain.PaymentRemain, error) {
	var payments []domain.PaymentRemain
	err := tx.WithContext(ctx).
		Where("sales_order_id = ?", orderID).
		Order("requested_at ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) ListStalePending(ctx context.Context, tx *gorm.DB, before time.Time, limit int) ([]domain.PaymentRemain, error) {
	var payments []domain.PaymentRemain
	err := tx.WithContext(ctx).
		Where("gateway_status = ? AND payment_method = ? AND requested_at < ?", domain.GatewayStatusPending, domain.PaymentMethodVNPay, before).
		Order("requested_at ASC, id ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) Settle(ctx context.Context, tx *gorm.DB, payment *domain.PaymentRemain) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE payment_remains
		 SET gateway_status = ?, paid_at = ?, bank_transaction_no = ?,
			gateway_response_code = ?, reject_reason = ?, updated_at = ?
		 WHERE id = ? AND gateway_status = ?`,
		payment.GatewayStatus,
		payment.PaidAt,
		payment.BankTransactionNo,
		payment.GatewayResponseCode,
		payment.RejectReason,
		payment.UpdatedAt,
		payment.ID,
		domain.GatewayStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) AssignInvoice(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := tx.WithContext(ctx).Exec(
		`UPDATE payment_remains
		 SET invoice_id = ?, updated_at = ?
		 WHERE id IN ? AND gateway_status = ? AND invoice_id IS NULL`,
		invoiceID,
		now,
		ids,
		domain.GatewayStatusSuccess,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) InsertCallback(ctx context.Context, tx *gorm.DB, callback *domain.GatewayCallback) error {
	return tx.WithContext(ctx).Create(callback).Error
}
