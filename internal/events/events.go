package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Type string

const (
	TypeOrderApproved        Type = "order.approved"
	TypeOrderRejected        Type = "order.rejected"
	TypeDepositCheckApproved Type = "deposit_check.approved"
	TypeDepositCheckRejected Type = "deposit_check.rejected"
)

// Event is emitted once its transaction has committed.
type Event struct {
	Type         Type
	SalesOrderID snowflake.ID
	CustomerID   snowflake.ID
	OrderCode    string
	Amount       int64
	Reason       string
}

// Notifier delivers an event to the customer.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Dispatcher delivers committed events synchronously. Delivery failures are
// logged and never surfaced to the caller.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	log      *zap.Logger
}

var Module = fx.Module("events",
	fx.Provide(NewEmailNotifier),
	fx.Provide(NewDispatcherFromConfig),
)

func NewDispatcher(notifier Notifier, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		log:      log.Named("events.dispatcher"),
	}
}

func NewDispatcherFromConfig(cfg config.Config, notifier Notifier, log *zap.Logger) *Dispatcher {
	return NewDispatcher(notifier, time.Duration(cfg.NotifyTimeoutMS)*time.Millisecond, log)
}

func (d *Dispatcher) Dispatch(ctx context.Context, events ...Event) {
	if d == nil || d.notifier == nil {
		return
	}
	for _, event := range events {
		d.deliver(ctx, event)
	}
}

func (d *Dispatcher) deliver(parent context.Context, event Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, event); err != nil {
		d.log.Warn("event delivery failed",
			zap.String("type", string(event.Type)),
			zap.String("sales_order_id", event.SalesOrderID.String()),
			zap.Error(err),
		)
		return
	}
	d.log.Debug("event delivered",
		zap.String("type", string(event.Type)),
		zap.String("sales_order_id", event.SalesOrderID.String()),
	)
}
