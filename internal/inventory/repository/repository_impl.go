package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Provider {
	return &repo{}
}

func (r *repo) GetLots(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]domain.Lot, error) {
	out := make(map[snowflake.ID]domain.Lot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var lots []domain.Lot
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&lots).Error; err != nil {
		return nil, err
	}
	for _, lot := range lots {
		out[lot.ID] = lot
	}
	return out, nil
}

func (r *repo) GetGoodsIssueNote(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.GoodsIssueNote, error) {
	var note domain.GoodsIssueNote
	err := db.WithContext(ctx).Where("id = ?", id).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

type deliveryRow struct {
	ID          snowflake.ID
	Code        string
	DeliveredAt time.Time
	Amount      int64
}

func (r *repo) ListDeliveries(ctx context.Context, db *gorm.DB, salesOrderID snowflake.ID) ([]domain.DeliveryAmount, error) {
	var rows []deliveryRow
	err := db.WithContext(ctx).Raw(
		`SELECT n.id, n.code, n.delivered_at,
			COALESCE(SUM(l.quantity * l.unit_price), 0) AS amount
		 FROM goods_issue_notes n
		 LEFT JOIN goods_issue_note_lines l ON l.goods_issue_note_id = n.id
		 WHERE n.sales_order_id = ?
		 GROUP BY n.id, n.code, n.delivered_at
		 ORDER BY n.delivered_at ASC, n.id ASC`,
		salesOrderID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.DeliveryAmount, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.DeliveryAmount{
			GoodsIssueNoteID: row.ID,
			Code:             row.Code,
			DeliveredAt:      row.DeliveredAt,
			Amount:           row.Amount,
		})
	}
	return out, nil
}
