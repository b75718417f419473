package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pharmasettle/internal/audit/domain"
	"github.com/smallbiznis/pharmasettle/internal/clock"
	depositdomain "github.com/smallbiznis/pharmasettle/internal/deposit/domain"
	"github.com/smallbiznis/pharmasettle/internal/events"
	inventorydomain "github.com/smallbiznis/pharmasettle/internal/inventory/domain"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	obscontext "github.com/smallbiznis/pharmasettle/internal/observability/context"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"github.com/smallbiznis/pharmasettle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        depositdomain.Repository
	SalesOrders salesorderdomain.Service
	Ledger      ledgerdomain.Service
	Payments    paymentdomain.Service
	Inventory   inventorydomain.Provider
	Audit       auditdomain.Service
	Dispatcher  *events.Dispatcher `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        depositdomain.Repository
	salesOrders salesorderdomain.Service
	ledger      ledgerdomain.Service
	payments    paymentdomain.Service
	inventory   inventorydomain.Provider
	audit       auditdomain.Service
	dispatcher  *events.Dispatcher
}

func NewService(p Params) depositdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("deposit.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		salesOrders: p.SalesOrders,
		ledger:      p.Ledger,
		payments:    p.Payments,
		inventory:   p.Inventory,
		audit:       p.Audit,
		dispatcher:  p.Dispatcher,
	}
}

func (s *Service) Submit(ctx context.Context, req depositdomain.SubmitRequest) (*depositdomain.DepositCheck, error) {
	if req.RequestedAmount <= 0 {
		return nil, depositdomain.ErrInvalidAmount
	}
	switch req.PaymentMethod {
	case paymentdomain.PaymentMethodBankTransfer, paymentdomain.PaymentMethodCash:
	default:
		return nil, depositdomain.ErrInvalidPaymentMethod
	}
	if req.PaymentType == "" {
		req.PaymentType = paymentdomain.PaymentTypeDeposit
	}
	if !req.PaymentType.Valid() {
		return nil, depositdomain.ErrInvalidPaymentType
	}
	if req.GoodsIssueNoteID != nil && req.PaymentType != paymentdomain.PaymentTypeRemain {
		return nil, depositdomain.ErrInvalidGoodsIssue
	}

	var check *depositdomain.DepositCheck
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.salesOrders.LockApproved(ctx, tx, req.SalesOrderID)
		if err != nil {
			return err
		}

		if req.GoodsIssueNoteID != nil {
			note, err := s.inventory.GetGoodsIssueNote(ctx, tx, *req.GoodsIssueNoteID)
			if err != nil {
				return err
			}
			if note == nil || note.SalesOrderID != order.ID {
				return depositdomain.ErrInvalidGoodsIssue
			}
		}

		pending, err := s.repo.HasPending(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if pending {
			return depositdomain.ErrPendingCheckExists
		}

		debt, err := s.ledger.Outstanding(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if debt.Status == ledgerdomain.DebtStatusDisabled {
			return ledgerdomain.ErrDebtDisabled
		}
		if req.RequestedAmount > debt.DebtAmount {
			return depositdomain.ErrAmountExceedsDebt
		}

		check = &depositdomain.DepositCheck{
			ID:               s.genID.Generate(),
			SalesOrderID:     order.ID,
			RequestedAmount:  req.RequestedAmount,
			PaymentMethod:    req.PaymentMethod,
			PaymentType:      req.PaymentType,
			GoodsIssueNoteID: req.GoodsIssueNoteID,
			Note:             strings.TrimSpace(req.Note),
			Status:           depositdomain.CheckStatusPending,
			RequestedBy:      actorOrSystem(ctx),
			RequestedAt:      s.clock.Now(),
		}
		return s.repo.Insert(ctx, tx, check)
	})
	if err != nil {
		return nil, db.Classify(err)
	}

	s.log.Info("deposit check submitted",
		zap.String("deposit_check_id", check.ID.String()),
		zap.String("sales_order_id", check.SalesOrderID.String()),
		zap.Int64("requested_amount", check.RequestedAmount),
	)
	return check, nil
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*depositdomain.DepositCheck, error) {
	reviewer := actorOrSystem(ctx)

	var (
		check *depositdomain.DepositCheck
		order *salesorderdomain.SalesOrder
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		check, err = s.lockPending(ctx, tx, id)
		if err != nil {
			return err
		}
		order, err = s.salesOrders.LockApproved(ctx, tx, check.SalesOrderID)
		if err != nil {
			return err
		}

		checkID := check.ID
		payment, err := s.payments.RecordConfirmed(ctx, tx, paymentdomain.ConfirmedPayment{
			SalesOrderID:     check.SalesOrderID,
			PaymentType:      check.PaymentType,
			PaymentMethod:    check.PaymentMethod,
			Amount:           check.RequestedAmount,
			GoodsIssueNoteID: check.GoodsIssueNoteID,
			DepositCheckID:   &checkID,
			RequestedAt:      check.RequestedAt,
		})
		if err != nil {
			return err
		}

		now := s.clock.Now()
		check.Status = depositdomain.CheckStatusApproved
		check.ReviewedBy = &reviewer
		check.ReviewedAt = &now
		check.PaymentRemainID = &payment.ID
		if err := s.review(ctx, tx, check); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionDepositCheckApprove,
			TargetType: "deposit_check",
			TargetID:   check.ID.String(),
			Metadata: map[string]any{
				"sales_order_id":    check.SalesOrderID.String(),
				"amount":            check.RequestedAmount,
				"payment_remain_id": payment.ID.String(),
			},
		})
	})
	if err != nil {
		return nil, db.Classify(err)
	}

	s.log.Info("deposit check approved",
		zap.String("deposit_check_id", check.ID.String()),
		zap.String("reviewed_by", reviewer),
	)
	s.dispatcher.Dispatch(ctx, events.Event{
		Type:         events.TypeDepositCheckApproved,
		SalesOrderID: order.ID,
		CustomerID:   order.CustomerID,
		OrderCode:    order.Code,
		Amount:       check.RequestedAmount,
	})
	return check, nil
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID, reason string) (*depositdomain.DepositCheck, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, depositdomain.ErrRejectReasonRequired
	}
	reviewer := actorOrSystem(ctx)

	var (
		check *depositdomain.DepositCheck
		order *salesorderdomain.SalesOrder
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		check, err = s.lockPending(ctx, tx, id)
		if err != nil {
			return err
		}
		// The order is locked before the new SUCCESS payment is inserted, never
		// after a PENDING payment row, so this cannot deadlock with a callback.
		order, err = s.salesOrders.Lock(ctx, tx, check.SalesOrderID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		check.Status = depositdomain.CheckStatusRejected
		check.ReviewedBy = &reviewer
		check.ReviewedAt = &now
		check.RejectReason = &reason
		if err := s.review(ctx, tx, check); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionDepositCheckReject,
			TargetType: "deposit_check",
			TargetID:   check.ID.String(),
			Metadata: map[string]any{
				"sales_order_id": check.SalesOrderID.String(),
				"amount":         check.RequestedAmount,
				"reason":         reason,
			},
		})
	})
	if err != nil {
		return nil, db.Classify(err)
	}

	s.log.Info("deposit check rejected",
		zap.String("deposit_check_id", check.ID.String()),
		zap.String("reviewed_by", reviewer),
	)
	s.dispatcher.Dispatch(ctx, events.Event{
		Type:         events.TypeDepositCheckRejected,
		SalesOrderID: order.ID,
		CustomerID:   order.CustomerID,
		OrderCode:    order.Code,
		Amount:       check.RequestedAmount,
		Reason:       reason,
	})
	return check, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*depositdomain.DepositCheck, error) {
	check, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if check == nil {
		return nil, depositdomain.ErrCheckNotFound
	}
	return check, nil
}

func (s *Service) List(ctx context.Context, salesOrderID snowflake.ID) ([]depositdomain.DepositCheck, error) {
	return s.repo.ListByOrder(ctx, s.db, salesOrderID)
}

func (s *Service) lockPending(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*depositdomain.DepositCheck, error) {
	check, err := s.repo.FindByID(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if check == nil {
		return nil, depositdomain.ErrCheckNotFound
	}
	if check.Status != depositdomain.CheckStatusPending {
		return nil, depositdomain.ErrCheckNotPending
	}
	return check, nil
}

func (s *Service) review(ctx context.Context, tx *gorm.DB, check *depositdomain.DepositCheck) error {
	ok, err := s.repo.Review(ctx, tx, check)
	if err != nil {
		return err
	}
	if !ok {
		return depositdomain.ErrCheckNotPending
	}
	return nil
}

func actorOrSystem(ctx context.Context) string {
	actorID, _ := obscontext.ActorFromContext(ctx)
	if actorID == "" {
		return "system"
	}
	return actorID
}
