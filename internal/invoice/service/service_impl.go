package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pharmasettle/internal/audit/domain"
	"github.com/smallbiznis/pharmasettle/internal/clock"
	"github.com/smallbiznis/pharmasettle/internal/config"
	customerdomain "github.com/smallbiznis/pharmasettle/internal/customer/domain"
	inventorydomain "github.com/smallbiznis/pharmasettle/internal/inventory/domain"
	"github.com/smallbiznis/pharmasettle/internal/invoice/allocation"
	invoicedomain "github.com/smallbiznis/pharmasettle/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/pharmasettle/internal/invoice/format"
	obsmetrics "github.com/smallbiznis/pharmasettle/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/smallbiznis/pharmasettle/internal/providers/pdf"
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
	Cfg         config.Config
	Repo        invoicedomain.Repository
	SalesOrders salesorderdomain.Service
	Payments    paymentdomain.Service
	Inventory   inventorydomain.Provider
	Customers   customerdomain.Repository
	Audit       auditdomain.Service
	Renderer    pdf.Provider        `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	sellerName    string
	renderTimeout time.Duration
	repo          invoicedomain.Repository
	salesOrders   salesorderdomain.Service
	payments      paymentdomain.Service
	inventory     inventorydomain.Provider
	customers     customerdomain.Repository
	audit         auditdomain.Service
	renderer      pdf.Provider
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) invoicedomain.Service {
	timeout := time.Duration(p.Cfg.RenderTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("invoice.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		sellerName:    p.Cfg.AppName,
		renderTimeout: timeout,
		repo:          p.Repo,
		salesOrders:   p.SalesOrders,
		payments:      p.Payments,
		inventory:     p.Inventory,
		customers:     p.Customers,
		audit:         p.Audit,
		renderer:      p.Renderer,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Service) Generate(ctx context.Context, req invoicedomain.GenerateRequest) (*invoicedomain.Invoice, error) {
	if req.SalesOrderID == 0 {
		return nil, invoicedomain.ErrInvalidSalesOrder
	}
	seen := make(map[snowflake.ID]struct{}, len(req.PaymentRemainIDs))
	for _, id := range req.PaymentRemainIDs {
		if _, ok := seen[id]; ok {
			return nil, invoicedomain.ErrDuplicatePayment
		}
		seen[id] = struct{}{}
	}

	var invoice *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Order first, then its SUCCESS payment rows. The gateway callback locks
		// a PENDING payment before the order; the two row sets must stay disjoint.
		order, err := s.salesOrders.Lock(ctx, tx, req.SalesOrderID)
		if err != nil {
			return err
		}
		if order.Status != salesorderdomain.StatusApproved {
			return salesorderdomain.ErrOrderNotApproved
		}

		payments, err := s.selectedPayments(ctx, tx, order.ID, req.PaymentRemainIDs)
		if err != nil {
			return err
		}
		deliveries, err := s.eligibleDeliveries(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		result, err := allocation.Allocate(deliveries, payments)
		if err != nil {
			return err
		}

		count, err := s.repo.CountByOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		code, err := invoiceformat.InvoiceNumber(invoiceformat.DefaultInvoiceNumberTemplate, now, order.Code, count+1)
		if err != nil {
			return err
		}

		invoice = &invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			SalesOrderID:  order.ID,
			Code:          code,
			Status:        invoicedomain.InvoiceStatusIssued,
			PaymentStatus: salesorderdomain.DerivePaymentStatus(result.TotalPaid, result.TotalAmount),
			TotalAmount:   result.TotalAmount,
			TotalPaid:     result.TotalPaid,
			TotalDeposit:  result.TotalDeposit,
			TotalRemain:   result.TotalRemain,
			IssuedAt:      now,
			CreatedAt:     now,
		}
		for _, line := range result.Lines {
			invoice.Details = append(invoice.Details, invoicedomain.InvoiceDetail{
				InvoiceID:        invoice.ID,
				GoodsIssueNoteID: line.GoodsIssueNoteID,
				GoodsIssueAmount: line.GoodsIssueAmount,
				AllocatedDeposit: line.AllocatedDeposit,
				PaidRemain:       line.PaidRemain,
				TotalPaidForNote: line.TotalPaidForNote,
				NoteBalance:      line.NoteBalance,
			})
		}
		if err := s.repo.Insert(ctx, tx, invoice); err != nil {
			return err
		}

		if err := s.payments.AssignInvoice(ctx, tx, req.PaymentRemainIDs, invoice.ID); err != nil {
			return err
		}
		if _, err := s.salesOrders.RecomputePaymentStatus(ctx, tx, order.ID); err != nil {
			return fmt.Errorf("recompute payment status: %w", err)
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionInvoiceGenerate,
			TargetType: "invoice",
			TargetID:   invoice.ID.String(),
			Metadata: map[string]any{
				"sales_order_id": order.ID.String(),
				"code":           invoice.Code,
				"total_amount":   invoice.TotalAmount,
				"total_paid":     invoice.TotalPaid,
				"deliveries":     len(invoice.Details),
				"payments":       len(req.PaymentRemainIDs),
			},
		})
	})
	if err != nil {
		return nil, db.Classify(err)
	}

	s.obsMetrics.RecordInvoiceGenerated(ctx, string(invoice.PaymentStatus))
	s.log.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("code", invoice.Code),
		zap.String("sales_order_id", invoice.SalesOrderID.String()),
		zap.Int64("total_amount", invoice.TotalAmount),
		zap.Int64("total_paid", invoice.TotalPaid),
	)
	return invoice, nil
}

// selectedPayments locks the chosen records and checks each one can be allocated.
func (s *Service) selectedPayments(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, ids []snowflake.ID) ([]allocation.Payment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	records, err := s.payments.LockForAllocation(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if len(records) != len(ids) {
		return nil, invoicedomain.ErrPaymentMissing
	}

	out := make([]allocation.Payment, 0, len(records))
	for _, rec := range records {
		if rec.SalesOrderID != orderID ||
			rec.GatewayStatus != paymentdomain.GatewayStatusSuccess ||
			rec.InvoiceID != nil {
			return nil, invoicedomain.ErrPaymentNotEligible
		}
		out = append(out, allocation.Payment{
			ID:               rec.ID,
			Type:             rec.PaymentType,
			Amount:           rec.Amount,
			GoodsIssueNoteID: rec.GoodsIssueNoteID,
		})
	}
	return out, nil
}

func (s *Service) eligibleDeliveries(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) ([]allocation.Delivery, error) {
	notes, err := s.inventory.ListDeliveries(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(notes))
	for _, n := range notes {
		ids = append(ids, n.GoodsIssueNoteID)
	}
	invoiced, err := s.repo.InvoicedNotes(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]allocation.Delivery, 0, len(notes))
	for _, n := range notes {
		if _, ok := invoiced[n.GoodsIssueNoteID]; ok {
			continue
		}
		out = append(out, allocation.Delivery{GoodsIssueNoteID: n.GoodsIssueNoteID, Amount: n.Amount})
	}
	if len(out) == 0 {
		return nil, invoicedomain.ErrNoEligibleDeliveries
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	details, err := s.repo.ListDetails(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	invoice.Details = details
	return invoice, nil
}

func (s *Service) ListByOrder(ctx context.Context, salesOrderID snowflake.ID) ([]invoicedomain.Invoice, error) {
	return s.repo.ListByOrder(ctx, s.db, salesOrderID)
}
