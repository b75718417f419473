package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pharmasettle/internal/audit/domain"
	"github.com/smallbiznis/pharmasettle/internal/clock"
	"github.com/smallbiznis/pharmasettle/internal/config"
	customerdomain "github.com/smallbiznis/pharmasettle/internal/customer/domain"
	"github.com/smallbiznis/pharmasettle/internal/events"
	inventorydomain "github.com/smallbiznis/pharmasettle/internal/inventory/domain"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	obscontext "github.com/smallbiznis/pharmasettle/internal/observability/context"
	"github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"github.com/smallbiznis/pharmasettle/pkg/db"
	"github.com/smallbiznis/pharmasettle/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Customers  customerdomain.Repository
	Inventory  inventorydomain.Provider
	Ledger     ledgerdomain.Service
	Audit      auditdomain.Service
	Settlement *config.SettlementConfigHolder
	Dispatcher *events.Dispatcher `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	customers  customerdomain.Repository
	inventory  inventorydomain.Provider
	ledger     ledgerdomain.Service
	audit      auditdomain.Service
	settlement *config.SettlementConfigHolder
	dispatcher *events.Dispatcher
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("salesorder.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		customers:  p.Customers,
		inventory:  p.Inventory,
		ledger:     p.Ledger,
		audit:      p.Audit,
		settlement: p.Settlement,
		dispatcher: p.Dispatcher,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.SalesOrder, error) {
	if req.CustomerID == 0 {
		return nil, domain.ErrInvalidCustomer
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrInvalidItems
	}

	now := s.clock.Now()
	expiredAt := now.AddDate(0, 0, s.settlement.Get().OrderExpiryDays)
	if req.ExpiredAt != nil {
		if !req.ExpiredAt.After(now) {
			return nil, domain.ErrInvalidExpiry
		}
		expiredAt = req.ExpiredAt.UTC()
	}

	lotIDs := make([]snowflake.ID, 0, len(req.Items))
	seen := make(map[snowflake.ID]struct{}, len(req.Items))
	for _, item := range req.Items {
		if item.LotID == 0 {
			return nil, domain.ErrInvalidItems
		}
		if item.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		if _, ok := seen[item.LotID]; ok {
			return nil, domain.ErrDuplicateLot
		}
		seen[item.LotID] = struct{}{}
		lotIDs = append(lotIDs, item.LotID)
	}

	actorID, _ := obscontext.ActorFromContext(ctx)
	if actorID == "" {
		actorID = "system"
	}

	var order *domain.SalesOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.customers.FindByID(ctx, tx, req.CustomerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrInvalidCustomer
		}

		lots, err := s.inventory.GetLots(ctx, tx, lotIDs)
		if err != nil {
			return err
		}

		orderID := s.genID.Generate()
		order = &domain.SalesOrder{
			ID:            orderID,
			Code:          orderCode(now, orderID),
			CustomerID:    req.CustomerID,
			CreatedBy:     actorID,
			Status:        domain.StatusDraft,
			PaymentStatus: domain.PaymentStatusUnpaid,
			ExpiredAt:     expiredAt,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		for _, item := range req.Items {
			lot, ok := lots[item.LotID]
			if !ok {
				return inventorydomain.ErrLotNotFound
			}
			if !lot.ExpiryDate.After(now) {
				return domain.ErrLotExpired
			}
			if item.Quantity > lot.Quantity {
				return domain.ErrInsufficientStock
			}
			subtotal := item.Quantity * lot.UnitPrice
			order.Details = append(order.Details, domain.SalesOrderDetail{
				ID:           s.genID.Generate(),
				SalesOrderID: orderID,
				LotID:        lot.ID,
				Quantity:     item.Quantity,
				UnitPrice:    lot.UnitPrice,
				Subtotal:     subtotal,
			})
			order.TotalPrice += subtotal
		}

		return s.repo.Insert(ctx, tx, order)
	})
	if err != nil {
		return nil, db.Classify(err)
	}

	s.log.Info("sales order created",
		zap.String("sales_order_id", order.ID.String()),
		zap.String("code", order.Code),
		zap.Int64("total_price", order.TotalPrice),
	)
	return order, nil
}

func (s *Service) Submit(ctx context.Context, id snowflake.ID) (*domain.SalesOrder, error) {
	var order *domain.SalesOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if order.Status != domain.StatusDraft {
			return domain.ErrInvalidTransition
		}
		if !order.ExpiredAt.After(s.clock.Now()) {
			return domain.ErrOrderExpired
		}

		now := s.clock.Now()
		order.Status = domain.StatusSend
		order.SubmittedAt = &now
		order.UpdatedAt = now
		return s.repo.Update(ctx, tx, order)
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return order, nil
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*domain.SalesOrder, error) {
	actorID := actorOrSystem(ctx)

	var order *domain.SalesOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if order.Status != domain.StatusSend {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		if !order.ExpiredAt.After(now) {
			return domain.ErrOrderExpired
		}

		order.Status = domain.StatusApproved
		order.ApprovedBy = &actorID
		order.ApprovedAt = &now
		order.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, order); err != nil {
			return err
		}

		if _, err := s.ledger.Open(ctx, tx, ledgerdomain.OpenRequest{
			SalesOrderID: order.ID,
			CustomerID:   order.CustomerID,
			Amount:       order.TotalPrice,
		}); err != nil {
			return fmt.Errorf("open debt: %w", err)
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionSalesOrderApprove,
			TargetType: "sales_order",
			TargetID:   order.ID.String(),
			Metadata: map[string]any{
				"code":        order.Code,
				"total_price": order.TotalPrice,
			},
		})
	})
	if err != nil {
		return nil, db.Classify(err)
	}

	s.log.Info("sales order approved",
		zap.String("sales_order_id", order.ID.String()),
		zap.String("approved_by", actorID),
	)
	s.dispatcher.Dispatch(ctx, events.Event{
		Type:         events.TypeOrderApproved,
		SalesOrderID: order.ID,
		CustomerID:   order.CustomerID,
		OrderCode:    order.Code,
		Amount:       order.TotalPrice,
	})
	return order, nil
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID, reason string) (*domain.SalesOrder, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrRejectReasonRequired
	}
	actorID := actorOrSystem(ctx)

	var order *domain.SalesOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if order.Status != domain.StatusSend {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		if !order.ExpiredAt.After(now) {
			return domain.ErrOrderExpired
		}

		order.Status = domain.StatusRejected
		order.RejectReason = &reason
		order.RejectedBy = &actorID
		order.RejectedAt = &now
		order.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, order); err != nil {
			return err
		}

		if err := s.ledger.Disable(ctx, tx, ledgerdomain.DisableRequest{
			SalesOrderID: order.ID,
			SourceType:   ledgerdomain.SourceTypeOrderReject,
			SourceID:     order.ID,
		}); err != nil {
			return fmt.Errorf("disable debt: %w", err)
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionSalesOrderReject,
			TargetType: "sales_order",
			TargetID:   order.ID.String(),
			Metadata: map[string]any{
				"code":   order.Code,
				"reason": reason,
			},
		})
	})
	if err != nil {
		return nil, db.Classify(err)
	}

	s.log.Info("sales order rejected",
		zap.String("sales_order_id", order.ID.String()),
		zap.String("rejected_by", actorID),
	)
	s.dispatcher.Dispatch(ctx, events.Event{
		Type:         events.TypeOrderRejected,
		SalesOrderID: order.ID,
		CustomerID:   order.CustomerID,
		OrderCode:    order.Code,
		Reason:       reason,
	})
	return order, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.SalesOrder, error) {
	order, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	details, err := s.repo.ListDetails(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	order.Details = details
	return order, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	limit := req.Limit()
	filter := domain.ListFilter{
		CustomerID: req.CustomerID,
		Status:     req.Status,
		Limit:      limit + 1,
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		beforeID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.BeforeID = beforeID
	}

	orders, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	page, info := pagination.BuildCursorPageInfo(orders, limit, func(o *domain.SalesOrder) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        o.ID.String(),
			CreatedAt: o.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	resp := domain.ListResponse{SalesOrders: page}
	if info != nil {
		resp.PageInfo = *info
	}
	return resp, nil
}

func (s *Service) LockApproved(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.SalesOrder, error) {
	order, err := s.Lock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusApproved {
		return nil, domain.ErrOrderNotApproved
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return nil, domain.ErrOrderAlreadyPaid
	}
	return order, nil
}

func (s *Service) RecomputePaymentStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.SalesOrder, error) {
	order, err := s.Lock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusApproved {
		return order, nil
	}

	paid, err := s.repo.SumConfirmedPayments(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	next := domain.DerivePaymentStatus(paid, order.TotalPrice)
	if next.Rank() < order.PaymentStatus.Rank() {
		next = order.PaymentStatus
	}
	if next == order.PaymentStatus && paid == order.PaidAmount {
		return order, nil
	}

	now := s.clock.Now()
	becamePaid := next == domain.PaymentStatusPaid && order.PaidFullAt == nil
	order.PaidAmount = paid
	order.PaymentStatus = next
	order.UpdatedAt = now
	if becamePaid {
		order.PaidFullAt = &now
	}
	if err := s.repo.Update(ctx, tx, order); err != nil {
		return nil, err
	}

	if becamePaid {
		if err := s.ledger.Disable(ctx, tx, ledgerdomain.DisableRequest{
			SalesOrderID: order.ID,
			SourceType:   ledgerdomain.SourceTypeOrderPaid,
			SourceID:     order.ID,
		}); err != nil {
			return nil, fmt.Errorf("disable debt: %w", err)
		}
		s.log.Info("sales order fully paid",
			zap.String("sales_order_id", order.ID.String()),
			zap.Int64("paid_amount", paid),
		)
	}
	return order, nil
}

func (s *Service) Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.SalesOrder, error) {
	order, err := s.repo.FindByID(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func orderCode(now time.Time, id snowflake.ID) string {
	return fmt.Sprintf("SO-%s-%s", now.Format("20060102"), strings.ToUpper(id.Base36()))
}

func actorOrSystem(ctx context.Context) string {
	actorID, _ := obscontext.ActorFromContext(ctx)
	if actorID == "" {
		return "system"
	}
	return actorID
}
