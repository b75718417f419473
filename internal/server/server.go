package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/pharmasettle/internal/audit"
	auditdomain "github.com/smallbiznis/pharmasettle/internal/audit/domain"
	"github.com/smallbiznis/pharmasettle/internal/authorization"
	"github.com/smallbiznis/pharmasettle/internal/config"
	"github.com/smallbiznis/pharmasettle/internal/customer"
	"github.com/smallbiznis/pharmasettle/internal/deposit"
	depositdomain "github.com/smallbiznis/pharmasettle/internal/deposit/domain"
	"github.com/smallbiznis/pharmasettle/internal/events"
	"github.com/smallbiznis/pharmasettle/internal/inventory"
	"github.com/smallbiznis/pharmasettle/internal/invoice"
	invoicedomain "github.com/smallbiznis/pharmasettle/internal/invoice/domain"
	"github.com/smallbiznis/pharmasettle/internal/ledger"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	"github.com/smallbiznis/pharmasettle/internal/observability"
	obsmiddleware "github.com/smallbiznis/pharmasettle/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pharmasettle/internal/observability/metrics"
	obstracing "github.com/smallbiznis/pharmasettle/internal/observability/tracing"
	"github.com/smallbiznis/pharmasettle/internal/payment"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/smallbiznis/pharmasettle/internal/providers"
	"github.com/smallbiznis/pharmasettle/internal/ratelimit"
	"github.com/smallbiznis/pharmasettle/internal/salesorder"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	providers.Module,
	customer.Module,
	inventory.Module,
	ledger.Module,
	salesorder.Module,
	payment.Module,
	deposit.Module,
	invoice.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	salesOrderSvc   salesorderdomain.Service
	ledgerSvc       ledgerdomain.Service
	depositSvc      depositdomain.Service
	paymentSvc      paymentdomain.Service
	invoiceSvc      invoicedomain.Service
	callbackLimiter *ratelimit.CallbackLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	SalesOrderSvc   salesorderdomain.Service
	LedgerSvc       ledgerdomain.Service
	DepositSvc      depositdomain.Service
	PaymentSvc      paymentdomain.Service
	InvoiceSvc      invoicedomain.Service
	CallbackLimiter *ratelimit.CallbackLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		salesOrderSvc:   p.SalesOrderSvc,
		ledgerSvc:       p.LedgerSvc,
		depositSvc:      p.DepositSvc,
		paymentSvc:      p.PaymentSvc,
		invoiceSvc:      p.InvoiceSvc,
		callbackLimiter: p.CallbackLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerGatewayRoutes()
	svc.registerAPIRoutes()
	return svc
}

func (s *Server) registerGatewayRoutes() {
	gateway := s.engine.Group("/api/payments/vnpay")
	gateway.Use(s.CallbackRateLimit())
	{
		gateway.GET("/ipn", s.HandleVNPayIPN)
		gateway.GET("/return", s.HandleVNPayReturn)
	}
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(ActorContext())

	orders := api.Group("/sales-orders")
	{
		orders.POST("", s.authorize(authorization.ObjectSalesOrder, authorization.ActionCreate), s.CreateSalesOrder)
		orders.GET("", s.authorize(authorization.ObjectSalesOrder, authorization.ActionView), s.ListSalesOrders)
		orders.GET("/:id", s.authorize(authorization.ObjectSalesOrder, authorization.ActionView), s.GetSalesOrder)
		orders.POST("/:id/submit", s.authorize(authorization.ObjectSalesOrder, authorization.ActionSubmit), s.SubmitSalesOrder)
		orders.POST("/:id/approve", s.authorize(authorization.ObjectSalesOrder, authorization.ActionReview), s.ApproveSalesOrder)
		orders.POST("/:id/reject", s.authorize(authorization.ObjectSalesOrder, authorization.ActionReview), s.RejectSalesOrder)
		orders.GET("/:id/debt", s.authorize(authorization.ObjectDebt, authorization.ActionView), s.GetSalesOrderDebt)
		orders.GET("/:id/audit-logs", s.authorize(authorization.ObjectSalesOrder, authorization.ActionView), s.ListSalesOrderAuditLogs)

		orders.POST("/:id/deposit-checks", s.authorize(authorization.ObjectDepositCheck, authorization.ActionCreate), s.SubmitDepositCheck)
		orders.GET("/:id/deposit-checks", s.authorize(authorization.ObjectDepositCheck, authorization.ActionView), s.ListDepositChecks)
		orders.GET("/:id/payments", s.authorize(authorization.ObjectDebt, authorization.ActionView), s.ListSalesOrderPayments)
		orders.GET("/:id/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionView), s.ListSalesOrderInvoices)
	}

	checks := api.Group("/deposit-checks")
	{
		checks.GET("/:id", s.authorize(authorization.ObjectDepositCheck, authorization.ActionView), s.GetDepositCheck)
		checks.POST("/:id/approve", s.authorize(authorization.ObjectDepositCheck, authorization.ActionReview), s.ApproveDepositCheck)
		checks.POST("/:id/reject", s.authorize(authorization.ObjectDepositCheck, authorization.ActionReview), s.RejectDepositCheck)
	}

	payments := api.Group("/payments")
	{
		payments.POST("", s.authorize(authorization.ObjectPayment, authorization.ActionCreate), s.CreatePayment)
	}

	invoices := api.Group("/invoices")
	{
		invoices.POST("", s.authorize(authorization.ObjectInvoice, authorization.ActionCreate), s.GenerateInvoice)
		invoices.GET("/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionView), s.GetInvoice)
		invoices.GET("/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionRender), s.RenderInvoice)
	}
}
