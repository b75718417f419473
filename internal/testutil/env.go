// Package testutil wires the settlement services over an in-memory sqlite
// database for service-level tests.
package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/pharmasettle/internal/audit/domain"
	auditrepo "github.com/smallbiznis/pharmasettle/internal/audit/repository"
	auditservice "github.com/smallbiznis/pharmasettle/internal/audit/service"
	"github.com/smallbiznis/pharmasettle/internal/clock"
	"github.com/smallbiznis/pharmasettle/internal/config"
	customerrepo "github.com/smallbiznis/pharmasettle/internal/customer/repository"
	depositdomain "github.com/smallbiznis/pharmasettle/internal/deposit/domain"
	depositrepo "github.com/smallbiznis/pharmasettle/internal/deposit/repository"
	depositservice "github.com/smallbiznis/pharmasettle/internal/deposit/service"
	"github.com/smallbiznis/pharmasettle/internal/events"
	inventoryrepo "github.com/smallbiznis/pharmasettle/internal/inventory/repository"
	invoicedomain "github.com/smallbiznis/pharmasettle/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/pharmasettle/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/pharmasettle/internal/invoice/service"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/pharmasettle/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/pharmasettle/internal/ledger/service"
	"github.com/smallbiznis/pharmasettle/internal/migration"
	obscontext "github.com/smallbiznis/pharmasettle/internal/observability/context"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/smallbiznis/pharmasettle/internal/payment/gateway/vnpay"
	paymentrepo "github.com/smallbiznis/pharmasettle/internal/payment/repository"
	paymentservice "github.com/smallbiznis/pharmasettle/internal/payment/service"
	"github.com/smallbiznis/pharmasettle/internal/providers/pdf"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	salesorderrepo "github.com/smallbiznis/pharmasettle/internal/salesorder/repository"
	salesorderservice "github.com/smallbiznis/pharmasettle/internal/salesorder/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Epoch is the fake clock's starting instant.
var Epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// RecordingNotifier captures delivered events and can be told to fail.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

func (n *RecordingNotifier) Notify(ctx context.Context, event events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.Err
}

func (n *RecordingNotifier) Events() []events.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]events.Event(nil), n.events...)
}

type Env struct {
	DB       *gorm.DB
	Node     *snowflake.Node
	Clock    *clock.FakeClock
	Notifier *RecordingNotifier
	Gateway  *vnpay.Adapter

	Settlement *config.SettlementConfigHolder

	Ledger      ledgerdomain.Service
	Audit       auditdomain.Service
	SalesOrders salesorderdomain.Service
	Payments    paymentdomain.Service
	Deposits    depositdomain.Service
	Invoices    invoicedomain.Service
}

// OpenDB opens a private in-memory database with every settlement table.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func New(t *testing.T) *Env {
	t.Helper()
	db := OpenDB(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	clk := clock.NewFakeClock(Epoch)
	notifier := &RecordingNotifier{}
	dispatcher := events.NewDispatcher(notifier, time.Second, log)
	settlement := config.NewStaticSettlementConfig(config.DefaultSettlementConfig())

	gatewayCfg := config.GatewayConfig{
		TmnCode:            "TESTTMN1",
		HashSecret:         "TESTSECRET",
		PayURL:             "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:          "http://localhost:8080/api/payments/vnpay/return",
		ExpireAfterMinutes: 15,
	}
	gateway, err := vnpay.New(gatewayCfg)
	require.NoError(t, err)

	cfg := config.Config{AppName: "pharmasettle", Gateway: gatewayCfg, RenderTimeoutMS: 5000}
	customers := customerrepo.Provide()
	inventory := inventoryrepo.Provide()

	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: ledgerrepo.Provide(),
	})
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	salesOrders := salesorderservice.NewService(salesorderservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       salesorderrepo.Provide(),
		Customers:  customers,
		Inventory:  inventory,
		Ledger:     ledger,
		Audit:      audit,
		Settlement: settlement,
		Dispatcher: dispatcher,
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Cfg:         cfg,
		Settlement:  settlement,
		Repo:        paymentrepo.Provide(),
		SalesOrders: salesOrders,
		Ledger:      ledger,
		Audit:       audit,
		Gateway:     gateway,
	})
	deposits := depositservice.NewService(depositservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Repo:        depositrepo.Provide(),
		SalesOrders: salesOrders,
		Ledger:      ledger,
		Payments:    payments,
		Inventory:   inventory,
		Audit:       audit,
		Dispatcher:  dispatcher,
	})
	invoices := invoiceservice.NewService(invoiceservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Cfg:         cfg,
		Repo:        invoicerepo.Provide(),
		SalesOrders: salesOrders,
		Payments:    payments,
		Inventory:   inventory,
		Customers:   customers,
		Audit:       audit,
		Renderer:    pdf.New(),
	})

	return &Env{
		DB:          db,
		Node:        node,
		Clock:       clk,
		Notifier:    notifier,
		Gateway:     gateway,
		Settlement:  settlement,
		Ledger:      ledger,
		Audit:       audit,
		SalesOrders: salesOrders,
		Payments:    payments,
		Deposits:    deposits,
		Invoices:    invoices,
	}
}

// ActorCtx returns a context carrying the given caller.
func ActorCtx(id, role string) context.Context {
	return obscontext.WithActor(context.Background(), id, role)
}
