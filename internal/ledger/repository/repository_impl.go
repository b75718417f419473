package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	"github.com/smallbiznis/pharmasettle/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, debt *domain.CustomerDebt) (bool, error) {
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sales_order_id"}}, DoNothing: true}).
		Create(debt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindBySalesOrder(ctx context.Context, tx *gorm.DB, salesOrderID snowflake.ID, lock bool) (*domain.CustomerDebt, error) {
	q := tx.WithContext(ctx)
	if lock {
		q = db.ForUpdate(q)
	}
	var debt domain.CustomerDebt
	err := q.Where("sales_order_id = ?", salesOrderID).Take(&debt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &debt, nil
}

func (r *repo) UpdateBalance(ctx context.Context, tx *gorm.DB, debt *domain.CustomerDebt) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE customer_debts
		 SET debt_amount = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		debt.DebtAmount,
		debt.Status,
		debt.UpdatedAt,
		debt.ID,
	).Error
}

func (r *repo) InsertEntry(ctx context.Context, tx *gorm.DB, entry *domain.DebtEntry) (bool, error) {
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) EntryExists(ctx context.Context, tx *gorm.DB, sourceType domain.SourceType, sourceID snowflake.ID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&domain.DebtEntry{}).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListEntries(ctx context.Context, tx *gorm.DB, debtID snowflake.ID) ([]domain.DebtEntry, error) {
	var entries []domain.DebtEntry
	err := tx.WithContext(ctx).
		Where("debt_id = ?", debtID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
