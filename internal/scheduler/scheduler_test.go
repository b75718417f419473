package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/smallbiznis/pharmasettle/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, env *testutil.Env, cfg Config) *Scheduler {
	t.Helper()
	s, err := New(Params{
		Log:        zap.NewNop(),
		PaymentSvc: env.Payments,
		GenID:      env.Node,
		Clock:      env.Clock,
		Config:     cfg,
	})
	require.NoError(t, err)
	return s
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceExpiresStaleGatewayPayments(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 2_000_000)

	stale, err := env.Payments.CreatePayment(context.Background(), paymentdomain.CreatePaymentRequest{
		SalesOrderID: order.ID,
		PaymentType:  paymentdomain.PaymentTypeDeposit,
		ClientIP:     "10.0.0.8",
	})
	require.NoError(t, err)

	env.Clock.Advance(45 * time.Minute)

	s := newTestScheduler(t, env, Config{StaleAfter: 30 * time.Minute, BatchSize: 1})
	require.NoError(t, s.RunOnce(context.Background()))

	payment, err := env.Payments.Get(context.Background(), stale.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusFailed, payment.GatewayStatus)
	assert.Equal(t, int64(2_000_000), env.Outstanding(t, order.ID))

	// nothing left to sweep
	require.NoError(t, s.RunOnce(context.Background()))
}

func TestRunOnceKeepsFreshGatewayPayments(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 2_000_000)

	fresh, err := env.Payments.CreatePayment(context.Background(), paymentdomain.CreatePaymentRequest{
		SalesOrderID: order.ID,
		PaymentType:  paymentdomain.PaymentTypeFull,
		ClientIP:     "10.0.0.8",
	})
	require.NoError(t, err)

	env.Clock.Advance(5 * time.Minute)

	s := newTestScheduler(t, env, Config{StaleAfter: 30 * time.Minute})
	require.NoError(t, s.RunOnce(context.Background()))

	payment, err := env.Payments.Get(context.Background(), fresh.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusPending, payment.GatewayStatus)
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 2_000_000)

	stale, err := env.Payments.CreatePayment(context.Background(), paymentdomain.CreatePaymentRequest{
		SalesOrderID: order.ID,
		PaymentType:  paymentdomain.PaymentTypeDeposit,
		ClientIP:     "10.0.0.8",
	})
	require.NoError(t, err)

	env.Clock.Advance(time.Hour)

	s := newTestScheduler(t, env, Config{StaleAfter: 30 * time.Minute, EnabledJobs: []string{"something_else"}})
	require.NoError(t, s.RunOnce(context.Background()))

	payment, err := env.Payments.Get(context.Background(), stale.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusPending, payment.GatewayStatus)
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	env := testutil.New(t)
	s := newTestScheduler(t, env, Config{})

	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestRunJobWrapsFailures(t *testing.T) {
	env := testutil.New(t)
	s := newTestScheduler(t, env, Config{})
	boom := errors.New("boom")

	err := s.runJob(context.Background(), "failing_job", time.Second, func(ctx context.Context) error {
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
}

func TestIsJobEnabledMatchesCaseInsensitively(t *testing.T) {
	s := &Scheduler{cfg: Config{EnabledJobs: []string{"EXPIRE_GATEWAY_PAYMENTS"}}}
	assert.True(t, s.isJobEnabled(JobExpireGatewayPayments))
	assert.False(t, s.isJobEnabled("other"))

	s.cfg.EnabledJobs = nil
	assert.True(t, s.isJobEnabled("other"))
}
