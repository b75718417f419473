package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/clock"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/pharmasettle/internal/observability/metrics"
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
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Open(ctx context.Context, tx *gorm.DB, req ledgerdomain.OpenRequest) (*ledgerdomain.CustomerDebt, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	if req.SalesOrderID == 0 || req.CustomerID == 0 {
		return nil, ledgerdomain.ErrInvalidSource
	}
	if req.Amount < 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	debt := &ledgerdomain.CustomerDebt{
		ID:           s.genID.Generate(),
		SalesOrderID: req.SalesOrderID,
		CustomerID:   req.CustomerID,
		DebtAmount:   req.Amount,
		Status:       ledgerdomain.DebtStatusUnpaid,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Amount == 0 {
		debt.Status = ledgerdomain.DebtStatusDisabled
	}

	inserted, err := s.repo.Insert(ctx, tx, debt)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, ledgerdomain.ErrDebtAlreadyOpen
	}

	if err := s.journal(ctx, tx, debt, ledgerdomain.EntryKindOpen, ledgerdomain.SourceTypeOrderApproval, req.SalesOrderID, req.Amount); err != nil {
		return nil, err
	}

	s.log.Info("debt opened",
		zap.String("sales_order_id", req.SalesOrderID.String()),
		zap.Int64("amount", req.Amount),
	)
	return debt, nil
}

func (s *Service) Reduce(ctx context.Context, tx *gorm.DB, req ledgerdomain.ReduceRequest) (ledgerdomain.ReduceResult, error) {
	if err := requireTx(tx); err != nil {
		return ledgerdomain.ReduceResult{}, err
	}
	if req.Amount <= 0 {
		return ledgerdomain.ReduceResult{}, ledgerdomain.ErrInvalidAmount
	}
	if req.SourceType == "" || req.SourceID == 0 {
		return ledgerdomain.ReduceResult{}, ledgerdomain.ErrInvalidSource
	}

	debt, err := s.repo.FindBySalesOrder(ctx, tx, req.SalesOrderID, true)
	if err != nil {
		return ledgerdomain.ReduceResult{}, err
	}
	if debt == nil {
		return ledgerdomain.ReduceResult{}, ledgerdomain.ErrDebtNotFound
	}

	posted, err := s.repo.EntryExists(ctx, tx, req.SourceType, req.SourceID)
	if err != nil {
		return ledgerdomain.ReduceResult{}, err
	}
	if posted {
		return ledgerdomain.ReduceResult{Applied: false, Balance: debt.DebtAmount, Status: debt.Status}, nil
	}

	if debt.Status == ledgerdomain.DebtStatusDisabled {
		return ledgerdomain.ReduceResult{}, ledgerdomain.ErrDebtDisabled
	}
	if req.Amount > debt.DebtAmount {
		return ledgerdomain.ReduceResult{}, ledgerdomain.ErrAmountExceedsDebt
	}

	before := *debt
	debt.DebtAmount -= req.Amount
	if debt.DebtAmount == 0 {
		debt.Status = ledgerdomain.DebtStatusDisabled
	}
	debt.UpdatedAt = s.clock.Now()

	entry := s.newEntry(debt, ledgerdomain.EntryKindReduce, req.SourceType, req.SourceID, req.Amount)
	inserted, err := s.repo.InsertEntry(ctx, tx, entry)
	if err != nil {
		return ledgerdomain.ReduceResult{}, err
	}
	if !inserted {
		return ledgerdomain.ReduceResult{Applied: false, Balance: before.DebtAmount, Status: before.Status}, nil
	}
	if err := s.repo.UpdateBalance(ctx, tx, debt); err != nil {
		return ledgerdomain.ReduceResult{}, err
	}
	s.obsMetrics.RecordLedgerMutation(ctx, string(ledgerdomain.EntryKindReduce))

	return ledgerdomain.ReduceResult{Applied: true, Balance: debt.DebtAmount, Status: debt.Status}, nil
}

// Disable zeroes the outstanding amount. Orders without a ledger entry and
// entries that are already disabled are left untouched.
func (s *Service) Disable(ctx context.Context, tx *gorm.DB, req ledgerdomain.DisableRequest) error {
	if err := requireTx(tx); err != nil {
		return err
	}
	if req.SourceType == "" || req.SourceID == 0 {
		return ledgerdomain.ErrInvalidSource
	}

	debt, err := s.repo.FindBySalesOrder(ctx, tx, req.SalesOrderID, true)
	if err != nil {
		return err
	}
	if debt == nil || debt.Status == ledgerdomain.DebtStatusDisabled {
		return nil
	}

	released := debt.DebtAmount
	debt.DebtAmount = 0
	debt.Status = ledgerdomain.DebtStatusDisabled
	debt.UpdatedAt = s.clock.Now()

	if err := s.journal(ctx, tx, debt, ledgerdomain.EntryKindDisable, req.SourceType, req.SourceID, released); err != nil {
		return err
	}
	return s.repo.UpdateBalance(ctx, tx, debt)
}

// Outstanding reads the ledger entry inside tx under a row lock.
func (s *Service) Outstanding(ctx context.Context, tx *gorm.DB, salesOrderID snowflake.ID) (*ledgerdomain.CustomerDebt, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	debt, err := s.repo.FindBySalesOrder(ctx, tx, salesOrderID, true)
	if err != nil {
		return nil, err
	}
	if debt == nil {
		return nil, ledgerdomain.ErrDebtNotFound
	}
	return debt, nil
}

func (s *Service) GetBySalesOrder(ctx context.Context, salesOrderID snowflake.ID) (*ledgerdomain.CustomerDebt, []ledgerdomain.DebtEntry, error) {
	debt, err := s.repo.FindBySalesOrder(ctx, s.db, salesOrderID, false)
	if err != nil {
		return nil, nil, err
	}
	if debt == nil {
		return nil, nil, ledgerdomain.ErrDebtNotFound
	}
	entries, err := s.repo.ListEntries(ctx, s.db, debt.ID)
	if err != nil {
		return nil, nil, err
	}
	return debt, entries, nil
}

func (s *Service) journal(ctx context.Context, tx *gorm.DB, debt *ledgerdomain.CustomerDebt, kind ledgerdomain.EntryKind, sourceType ledgerdomain.SourceType, sourceID snowflake.ID, amount int64) error {
	inserted, err := s.repo.InsertEntry(ctx, tx, s.newEntry(debt, kind, sourceType, sourceID, amount))
	if err != nil {
		return err
	}
	if inserted {
		s.obsMetrics.RecordLedgerMutation(ctx, string(kind))
	}
	return nil
}

func (s *Service) newEntry(debt *ledgerdomain.CustomerDebt, kind ledgerdomain.EntryKind, sourceType ledgerdomain.SourceType, sourceID snowflake.ID, amount int64) *ledgerdomain.DebtEntry {
	return &ledgerdomain.DebtEntry{
		ID:           s.genID.Generate(),
		DebtID:       debt.ID,
		SalesOrderID: debt.SalesOrderID,
		Kind:         kind,
		SourceType:   sourceType,
		SourceID:     sourceID,
		Amount:       amount,
		BalanceAfter: debt.DebtAmount,
		CreatedAt:    s.clock.Now(),
	}
}

func requireTx(tx *gorm.DB) error {
	if tx == nil || tx.Statement == nil {
		return ledgerdomain.ErrTransactionRequired
	}
	if _, ok := tx.Statement.ConnPool.(gorm.TxCommitter); !ok {
		return ledgerdomain.ErrTransactionRequired
	}
	return nil
}
