package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/pharmasettle/internal/audit/domain"
	"github.com/smallbiznis/pharmasettle/internal/clock"
	"github.com/smallbiznis/pharmasettle/internal/config"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	obscontext "github.com/smallbiznis/pharmasettle/internal/observability/context"
	obsmetrics "github.com/smallbiznis/pharmasettle/internal/observability/metrics"
	"github.com/smallbiznis/pharmasettle/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/smallbiznis/pharmasettle/internal/ratelimit"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"github.com/smallbiznis/pharmasettle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const callbackLockTTL = 30 * time.Second

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Settlement  *config.SettlementConfigHolder
	Repo        paymentdomain.Repository
	SalesOrders salesorderdomain.Service
	Ledger      ledgerdomain.Service
	Audit       auditdomain.Service
	Gateway     paymentdomain.Gateway `optional:"true"`
	Locker      *ratelimit.Locker     `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	expireAfter time.Duration
	settlement  *config.SettlementConfigHolder
	repo        paymentdomain.Repository
	salesOrders salesorderdomain.Service
	ledger      ledgerdomain.Service
	audit       auditdomain.Service
	gateway     paymentdomain.Gateway
	locker      *ratelimit.Locker
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	expire := time.Duration(p.Cfg.Gateway.ExpireAfterMinutes) * time.Minute
	if expire <= 0 {
		expire = 15 * time.Minute
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		expireAfter: expire,
		settlement:  p.Settlement,
		repo:        p.Repo,
		salesOrders: p.SalesOrders,
		ledger:      p.Ledger,
		audit:       p.Audit,
		gateway:     p.Gateway,
		locker:      p.Locker,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) CreatePayment(ctx context.Context, req paymentdomain.CreatePaymentRequest) (*paymentdomain.CheckoutResponse, error) {
	if req.PaymentType != paymentdomain.PaymentTypeDeposit && req.PaymentType != paymentdomain.PaymentTypeFull {
		return nil, paymentdomain.ErrInvalidPaymentType
	}
	if s.gateway == nil {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}

	var resp *paymentdomain.CheckoutResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.salesOrders.LockApproved(ctx, tx, req.SalesOrderID)
		if err != nil {
			return err
		}
		debt, err := s.ledger.Outstanding(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if debt.Status == ledgerdomain.DebtStatusDisabled || debt.DebtAmount <= 0 {
			return paymentdomain.ErrNothingOutstanding
		}

		amount := debt.DebtAmount
		if req.PaymentType == paymentdomain.PaymentTypeDeposit {
			if order.PaidAmount > 0 {
				return paymentdomain.ErrDepositAlreadyPaid
			}
			amount = depositAmount(order.TotalPrice, s.settlement.Get().Fraction())
			if amount > debt.DebtAmount {
				amount = debt.DebtAmount
			}
		}
		if amount <= 0 {
			return paymentdomain.ErrNothingOutstanding
		}

		now := s.clock.Now()
		txnRef := ulid.Make().String()
		payment := &paymentdomain.PaymentRemain{
			ID:            s.genID.Generate(),
			SalesOrderID:  order.ID,
			PaymentType:   req.PaymentType,
			PaymentMethod: s.gateway.Method(),
			Amount:        amount,
			RequestedAt:   now,
			GatewayStatus: paymentdomain.GatewayStatusPending,
			GatewayTxnRef: &txnRef,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, payment); err != nil {
			return err
		}

		expireAt := now.Add(s.expireAfter)
		checkoutURL, err := s.gateway.CheckoutURL(paymentdomain.CheckoutRequest{
			TxnRef:    txnRef,
			Amount:    amount,
			OrderInfo: fmt.Sprintf("Thanh toan %s %s", strings.ToLower(string(req.PaymentType)), order.Code),
			ClientIP:  req.ClientIP,
			CreatedAt: now,
			ExpireAt:  expireAt,
		})
		if err != nil {
			return fmt.Errorf("build checkout url: %w", err)
		}
		qrImage, err := qrDataURL(checkoutURL)
		if err != nil {
			return fmt.Errorf("render qr: %w", err)
		}

		resp = &paymentdomain.CheckoutResponse{
			PaymentID:      payment.ID,
			PaymentURL:     checkoutURL,
			QRImageDataURL: qrImage,
			Amount:         amount,
			TxnRef:         txnRef,
			ExpireAt:       expireAt,
		}
		return nil
	})
	if err != nil {
		return nil, db.Classify(err)
	}

	s.log.Info("gateway payment created",
		zap.String("sales_order_id", req.SalesOrderID.String()),
		zap.String("payment_type", string(req.PaymentType)),
		zap.String("txn_ref", resp.TxnRef),
		zap.Int64("amount", resp.Amount),
	)
	return resp, nil
}

// OverpaidReason marks a gateway charge that arrived after the debt had
// already been settled by another path.
const OverpaidReason = "confirmed by gateway, exceeds outstanding debt; refund required"

func (s *Service) HandleCallback(ctx context.Context, values url.Values) paymentdomain.CallbackResponse {
	if s.gateway == nil {
		s.log.Warn("gateway callback received while gateway is not configured")
		return s.respond(ctx, paymentdomain.CallbackOutcomeInvalidSignature)
	}

	result, err := s.gateway.Verify(values)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			s.log.Warn("gateway callback signature rejected",
				zap.String("txn_ref", values.Get("vnp_TxnRef")),
			)
			return s.respond(ctx, paymentdomain.CallbackOutcomeInvalidSignature)
		}
		s.log.Warn("gateway callback payload rejected", zap.Error(err))
		return s.respond(ctx, paymentdomain.CallbackOutcomeError)
	}

	release, err := s.acquire(ctx, result.TxnRef)
	if err != nil {
		s.log.Info("gateway callback already in progress", zap.String("txn_ref", result.TxnRef))
		return s.respond(ctx, paymentdomain.CallbackOutcomeError)
	}
	defer release()

	var outcome paymentdomain.CallbackOutcome
	var settled *paymentdomain.PaymentRemain
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		outcome, settled, err = s.reconcile(ctx, tx, result)
		if err != nil {
			return err
		}
		return s.recordCallback(ctx, tx, result, values, outcome)
	})
	if err != nil {
		s.log.Error("gateway callback failed",
			zap.String("txn_ref", result.TxnRef),
			zap.Error(err),
		)
		return s.respond(ctx, paymentdomain.CallbackOutcomeError)
	}

	if settled != nil {
		tracing.Annotate(ctx, obscontext.SettlementRefs{
			SalesOrderID: settled.SalesOrderID.String(),
			PaymentID:    settled.ID.String(),
			TxnRef:       result.TxnRef,
		})
	}
	if settled != nil && outcome == paymentdomain.CallbackOutcomeConfirmed {
		s.obsMetrics.RecordPaymentConfirmed(ctx, string(settled.PaymentMethod), string(settled.PaymentType), settled.Amount)
	}
	s.log.Info("gateway callback handled",
		zap.String("txn_ref", result.TxnRef),
		zap.String("outcome", string(outcome)),
		zap.String("response_code", result.ResponseCode),
	)
	return s.respond(ctx, outcome)
}

// reconcile runs the locked lookup and state transition for one verified callback.
func (s *Service) reconcile(ctx context.Context, tx *gorm.DB, result *paymentdomain.GatewayResult) (paymentdomain.CallbackOutcome, *paymentdomain.PaymentRemain, error) {
	payment, err := s.repo.FindByTxnRef(ctx, tx, result.TxnRef, true)
	if err != nil {
		return "", nil, err
	}
	if payment == nil {
		return paymentdomain.CallbackOutcomeNotFound, nil, nil
	}
	if payment.GatewayStatus != paymentdomain.GatewayStatusPending {
		return paymentdomain.CallbackOutcomeAlreadyConfirmed, payment, nil
	}
	if result.Amount != payment.Amount {
		s.log.Warn("gateway callback amount mismatch",
			zap.String("txn_ref", result.TxnRef),
			zap.Int64("expected", payment.Amount),
			zap.Int64("received", result.Amount),
		)
		return paymentdomain.CallbackOutcomeAmountMismatch, payment, nil
	}

	now := s.clock.Now()
	responseCode := result.ResponseCode
	payment.GatewayResponseCode = &responseCode
	payment.UpdatedAt = now
	if result.BankTransactionNo != "" {
		bankNo := result.BankTransactionNo
		payment.BankTransactionNo = &bankNo
	}

	if !result.Succeeded() {
		reason := fmt.Sprintf("gateway response %s/%s", result.ResponseCode, result.TransactionStatus)
		payment.GatewayStatus = paymentdomain.GatewayStatusFailed
		payment.RejectReason = &reason
		if err := s.settle(ctx, tx, payment); err != nil {
			return "", nil, err
		}
		if err := s.audit.Record(ctx, tx, paymentAudit(auditdomain.ActionPaymentFail, payment)); err != nil {
			return "", nil, err
		}
		return paymentdomain.CallbackOutcomeFailed, payment, nil
	}

	// Lock order is payment row, then sales order. Paths that lock the order
	// first (deposit approve, invoice generate) never touch PENDING records.
	if _, err := s.salesOrders.Lock(ctx, tx, payment.SalesOrderID); err != nil {
		return "", nil, err
	}
	debt, err := s.ledger.Outstanding(ctx, tx, payment.SalesOrderID)
	if err != nil {
		return "", nil, err
	}
	if debt.Status == ledgerdomain.DebtStatusDisabled || payment.Amount > debt.DebtAmount {
		s.log.Warn("gateway charge exceeds outstanding debt, refund required",
			zap.String("txn_ref", result.TxnRef),
			zap.Int64("amount", payment.Amount),
			zap.Int64("outstanding", debt.DebtAmount),
		)
		// charged by the gateway: terminal, no ledger effect
		reason := OverpaidReason
		payment.GatewayStatus = paymentdomain.GatewayStatusFailed
		payment.RejectReason = &reason
		if err := s.settle(ctx, tx, payment); err != nil {
			return "", nil, err
		}
		if err := s.audit.Record(ctx, tx, paymentAudit(auditdomain.ActionPaymentOverpaid, payment)); err != nil {
			return "", nil, err
		}
		return paymentdomain.CallbackOutcomeAmountMismatch, payment, nil
	}

	paidAt := now
	if result.PayDate != nil {
		paidAt = *result.PayDate
	}
	payment.GatewayStatus = paymentdomain.GatewayStatusSuccess
	payment.PaidAt = &paidAt
	if err := s.settle(ctx, tx, payment); err != nil {
		return "", nil, err
	}
	if err := s.applyConfirmed(ctx, tx, payment); err != nil {
		return "", nil, err
	}
	return paymentdomain.CallbackOutcomeConfirmed, payment, nil
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, payment *paymentdomain.PaymentRemain) error {
	ok, err := s.repo.Settle(ctx, tx, payment)
	if err != nil {
		return err
	}
	if !ok {
		return db.ErrConcurrentUpdate
	}
	return nil
}

// applyConfirmed posts a SUCCESS record to the ledger and the order.
func (s *Service) applyConfirmed(ctx context.Context, tx *gorm.DB, payment *paymentdomain.PaymentRemain) error {
	res, err := s.ledger.Reduce(ctx, tx, ledgerdomain.ReduceRequest{
		SalesOrderID: payment.SalesOrderID,
		Amount:       payment.Amount,
		SourceType:   ledgerdomain.SourceTypePayment,
		SourceID:     payment.ID,
	})
	if err != nil {
		return fmt.Errorf("reduce debt: %w", err)
	}
	if !res.Applied {
		s.log.Warn("payment already posted to ledger", zap.String("payment_id", payment.ID.String()))
	}
	if _, err := s.salesOrders.RecomputePaymentStatus(ctx, tx, payment.SalesOrderID); err != nil {
		return fmt.Errorf("recompute payment status: %w", err)
	}
	return s.audit.Record(ctx, tx, paymentAudit(auditdomain.ActionPaymentConfirm, payment))
}

func (s *Service) recordCallback(ctx context.Context, tx *gorm.DB, result *paymentdomain.GatewayResult, values url.Values, outcome paymentdomain.CallbackOutcome) error {
	payload, err := json.Marshal(flatten(values))
	if err != nil {
		return err
	}
	return s.repo.InsertCallback(ctx, tx, &paymentdomain.GatewayCallback{
		ID:           s.genID.Generate(),
		TxnRef:       result.TxnRef,
		ResponseCode: result.ResponseCode,
		Payload:      datatypes.JSON(payload),
		Outcome:      outcome,
		ReceivedAt:   s.clock.Now(),
	})
}

// acquire takes the cross-instance callback lock when redis is configured.
// A lock backend failure falls through to the database row lock.
func (s *Service) acquire(ctx context.Context, txnRef string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	key := "callback:" + txnRef
	token, ok, err := s.locker.TryLock(ctx, key, callbackLockTTL)
	if err != nil {
		s.log.Warn("callback lock unavailable", zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, paymentdomain.ErrCallbackInProgress
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("callback lock release failed", zap.Error(err))
		}
	}, nil
}

func (s *Service) respond(ctx context.Context, outcome paymentdomain.CallbackOutcome) paymentdomain.CallbackResponse {
	s.obsMetrics.RecordGatewayCallback(ctx, string(outcome))
	switch outcome {
	case paymentdomain.CallbackOutcomeConfirmed, paymentdomain.CallbackOutcomeFailed:
		return paymentdomain.CallbackResponse{RspCode: paymentdomain.RspCodeConfirmed, Message: "Confirm Success"}
	case paymentdomain.CallbackOutcomeNotFound:
		return paymentdomain.CallbackResponse{RspCode: paymentdomain.RspCodeNotFound, Message: "Order not found"}
	case paymentdomain.CallbackOutcomeAlreadyConfirmed:
		return paymentdomain.CallbackResponse{RspCode: paymentdomain.RspCodeAlreadyConfirmed, Message: "Order already confirmed"}
	case paymentdomain.CallbackOutcomeAmountMismatch:
		return paymentdomain.CallbackResponse{RspCode: paymentdomain.RspCodeInvalidAmount, Message: "Invalid amount"}
	case paymentdomain.CallbackOutcomeInvalidSignature:
		return paymentdomain.CallbackResponse{RspCode: paymentdomain.RspCodeInvalidSignature, Message: "Invalid signature"}
	default:
		return paymentdomain.CallbackResponse{RspCode: paymentdomain.RspCodeUnknownError, Message: "Unknown error"}
	}
}

func (s *Service) VerifyReturn(ctx context.Context, values url.Values) (*paymentdomain.ReturnResult, error) {
	if s.gateway == nil {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}
	result, err := s.gateway.Verify(values)
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.FindByTxnRef(ctx, s.db, result.TxnRef, false)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return &paymentdomain.ReturnResult{
		TxnRef:        result.TxnRef,
		SalesOrderID:  payment.SalesOrderID,
		Amount:        payment.Amount,
		GatewayStatus: payment.GatewayStatus,
		ResponseCode:  result.ResponseCode,
		Succeeded:     result.Succeeded(),
	}, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*paymentdomain.PaymentRemain, error) {
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) ListByOrder(ctx context.Context, orderID snowflake.ID) ([]paymentdomain.PaymentRemain, error) {
	return s.repo.ListByOrder(ctx, s.db, orderID)
}

func (s *Service) ExpireStale(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	stale, err := s.repo.ListStalePending(ctx, s.db, before, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		payment := stale[i]
		if payment.GatewayTxnRef == nil {
			continue
		}
		ok, err := s.expire(ctx, *payment.GatewayTxnRef)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// expire fails one record under the same lock a callback would take. A
// callback that settled it first wins.
func (s *Service) expire(ctx context.Context, txnRef string) (bool, error) {
	release, err := s.acquire(ctx, txnRef)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrCallbackInProgress) {
			return false, nil
		}
		return false, err
	}
	defer release()

	var moved bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindByTxnRef(ctx, tx, txnRef, true)
		if err != nil {
			return err
		}
		if payment == nil || payment.GatewayStatus != paymentdomain.GatewayStatusPending {
			return nil
		}

		reason := "checkout expired without gateway confirmation"
		payment.GatewayStatus = paymentdomain.GatewayStatusFailed
		payment.RejectReason = &reason
		payment.UpdatedAt = s.clock.Now()
		ok, err := s.repo.Settle(ctx, tx, payment)
		if err != nil || !ok {
			return err
		}
		moved = true
		return s.audit.Record(ctx, tx, paymentAudit(auditdomain.ActionPaymentExpire, payment))
	})
	if err != nil {
		return false, db.Classify(err)
	}
	if moved {
		s.log.Info("stale gateway payment expired", zap.String("txn_ref", txnRef))
	}
	return moved, nil
}

func (s *Service) RecordConfirmed(ctx context.Context, tx *gorm.DB, req paymentdomain.ConfirmedPayment) (*paymentdomain.PaymentRemain, error) {
	if !req.PaymentType.Valid() {
		return nil, paymentdomain.ErrInvalidPaymentType
	}
	if !req.PaymentMethod.Valid() {
		return nil, paymentdomain.ErrInvalidPaymentMethod
	}
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	requestedAt := req.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = now
	}
	payment := &paymentdomain.PaymentRemain{
		ID:               s.genID.Generate(),
		SalesOrderID:     req.SalesOrderID,
		GoodsIssueNoteID: req.GoodsIssueNoteID,
		PaymentType:      req.PaymentType,
		PaymentMethod:    req.PaymentMethod,
		Amount:           req.Amount,
		RequestedAt:      requestedAt,
		PaidAt:           &now,
		GatewayStatus:    paymentdomain.GatewayStatusSuccess,
		DepositCheckID:   req.DepositCheckID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, tx, payment); err != nil {
		return nil, err
	}
	if err := s.applyConfirmed(ctx, tx, payment); err != nil {
		return nil, err
	}
	s.obsMetrics.RecordPaymentConfirmed(ctx, string(payment.PaymentMethod), string(payment.PaymentType), payment.Amount)
	return payment, nil
}

func (s *Service) LockForAllocation(ctx context.Context, tx *gorm.DB, ids []snowflake.ID) ([]paymentdomain.PaymentRemain, error) {
	return s.repo.FindByIDs(ctx, tx, ids, true)
}

func (s *Service) AssignInvoice(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID) error {
	touched, err := s.repo.AssignInvoice(ctx, tx, ids, invoiceID, s.clock.Now())
	if err != nil {
		return err
	}
	if touched != int64(len(ids)) {
		return paymentdomain.ErrPaymentAllocated
	}
	return nil
}

// depositAmount is total × fraction rounded half away from zero.
func depositAmount(total int64, fraction decimal.Decimal) int64 {
	return decimal.NewFromInt(total).Mul(fraction).Round(0).IntPart()
}

func paymentAudit(action string, payment *paymentdomain.PaymentRemain) auditdomain.Entry {
	metadata := map[string]any{
		"sales_order_id": payment.SalesOrderID.String(),
		"payment_type":   string(payment.PaymentType),
		"payment_method": string(payment.PaymentMethod),
		"amount":         payment.Amount,
	}
	if payment.GatewayTxnRef != nil {
		metadata["gateway_txn_ref"] = *payment.GatewayTxnRef
	}
	if payment.BankTransactionNo != nil {
		metadata["bank_transaction_no"] = *payment.BankTransactionNo
	}
	if payment.GatewayResponseCode != nil {
		metadata["gateway_response_code"] = *payment.GatewayResponseCode
	}
	return auditdomain.Entry{
		Action:     action,
		TargetType: "payment_remain",
		TargetID:   payment.ID.String(),
		Metadata:   metadata,
	}
}

func flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for key := range values {
		out[key] = values.Get(key)
	}
	return out
}
