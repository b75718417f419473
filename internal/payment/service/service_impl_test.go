package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pharmasettle/internal/audit/domain"
	"github.com/smallbiznis/pharmasettle/internal/config"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/smallbiznis/pharmasettle/internal/payment/service"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"github.com/smallbiznis/pharmasettle/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createPayment(t *testing.T, env *testutil.Env, orderID snowflake.ID, paymentType paymentdomain.PaymentType) *paymentdomain.CheckoutResponse {
	t.Helper()
	resp, err := env.Payments.CreatePayment(context.Background(), paymentdomain.CreatePaymentRequest{
		SalesOrderID: orderID,
		PaymentType:  paymentType,
		ClientIP:     "10.0.0.8",
	})
	require.NoError(t, err)
	return resp
}

func TestCreateDepositPayment(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 10_000_000)

	resp := createPayment(t, env, order.ID, paymentdomain.PaymentTypeDeposit)
	assert.Equal(t, int64(3_000_000), resp.Amount)
	assert.Len(t, resp.TxnRef, 26)
	assert.True(t, strings.HasPrefix(resp.PaymentURL, "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?"))
	assert.Contains(t, resp.PaymentURL, "vnp_Amount=300000000")
	assert.True(t, strings.HasPrefix(resp.QRImageDataURL, "data:image/png;base64,"))

	payment, err := env.Payments.Get(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusPending, payment.GatewayStatus)
	assert.Equal(t, paymentdomain.PaymentMethodVNPay, payment.PaymentMethod)

	// creating a payment never touches the ledger
	assert.Equal(t, int64(10_000_000), env.Outstanding(t, order.ID))
}

func TestCreateDepositRoundsToNearest(t *testing.T) {
	env := testutil.New(t)
	require.NoError(t, env.Settlement.Store(config.SettlementConfig{DepositFraction: "0.333", OrderExpiryDays: 7}))
	order := env.ApprovedOrder(t, 1_500)

	resp := createPayment(t, env, order.ID, paymentdomain.PaymentTypeDeposit)
	// 1500 x 0.333 = 499.5
	assert.Equal(t, int64(500), resp.Amount)
}

func TestCreatePaymentGuards(t *testing.T) {
	env := testutil.New(t)
	ctx := context.Background()

	sent := env.SentOrder(t, 1_000)
	_, err := env.Payments.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{SalesOrderID: sent.ID, PaymentType: paymentdomain.PaymentTypeDeposit})
	assert.ErrorIs(t, err, salesorderdomain.ErrOrderNotApproved)

	approved := env.ApprovedOrder(t, 1_000)
	_, err = env.Payments.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{SalesOrderID: approved.ID, PaymentType: paymentdomain.PaymentTypeRemain})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPaymentType)

	// a confirmed deposit blocks a second deposit but not a full payment
	resp := createPayment(t, env, approved.ID, paymentdomain.PaymentTypeDeposit)
	got := env.Payments.HandleCallback(ctx, env.CallbackValues(resp.TxnRef, resp.Amount, "00"))
	require.Equal(t, paymentdomain.RspCodeConfirmed, got.RspCode)

	_, err = env.Payments.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{SalesOrderID: approved.ID, PaymentType: paymentdomain.PaymentTypeDeposit})
	assert.ErrorIs(t, err, paymentdomain.ErrDepositAlreadyPaid)

	full := createPayment(t, env, approved.ID, paymentdomain.PaymentTypeFull)
	assert.Equal(t, int64(700), full.Amount)
}

// Scenario: a 100,000 order with a 20% deposit confirmed through the gateway.
func TestDepositConfirmationReducesDebt(t *testing.T) {
	env := testutil.New(t)
	require.NoError(t, env.Settlement.Store(config.SettlementConfig{DepositFraction: "0.2", OrderExpiryDays: 7}))
	order := env.ApprovedOrder(t, 100_000)

	resp := createPayment(t, env, order.ID, paymentdomain.PaymentTypeDeposit)
	require.Equal(t, int64(20_000), resp.Amount)

	got := env.Payments.HandleCallback(context.Background(), env.CallbackValues(resp.TxnRef, 20_000, "00"))
	assert.Equal(t, paymentdomain.RspCodeConfirmed, got.RspCode)
	assert.Equal(t, int64(80_000), env.Outstanding(t, order.ID))

	updated, err := env.SalesOrders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, salesorderdomain.PaymentStatusPartiallyPaid, updated.PaymentStatus)
	assert.Equal(t, int64(20_000), updated.PaidAmount)

	payment, err := env.Payments.Get(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusSuccess, payment.GatewayStatus)
	require.NotNil(t, payment.BankTransactionNo)
	assert.Equal(t, "VNP"+resp.TxnRef, *payment.BankTransactionNo)
	require.NotNil(t, payment.PaidAt)
	assert.True(t, payment.PaidAt.Equal(testutil.Epoch))

	logs, err := env.Audit.ListByTarget(context.Background(), "payment_remain", payment.ID.String())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, auditdomain.ActionPaymentConfirm, logs[0].Action)
	assert.Equal(t, "system", logs[0].ActorID)
}

// Scenario: the gateway delivers the same confirmation twice.
func TestDuplicateCallbackIsIdempotent(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 10_000_000)
	resp := createPayment(t, env, order.ID, paymentdomain.PaymentTypeDeposit)
	values := env.CallbackValues(resp.TxnRef, resp.Amount, "00")

	first := env.Payments.HandleCallback(context.Background(), values)
	assert.Equal(t, paymentdomain.RspCodeConfirmed, first.RspCode)
	assert.Equal(t, int64(7_000_000), env.Outstanding(t, order.ID))

	second := env.Payments.HandleCallback(context.Background(), values)
	assert.Equal(t, paymentdomain.RspCodeAlreadyConfirmed, second.RspCode)
	assert.Equal(t, int64(7_000_000), env.Outstanding(t, order.ID))

	payment, err := env.Payments.Get(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, resp.Amount, payment.Amount)

	_, entries, err := env.Ledger.GetBySalesOrder(context.Background(), order.ID)
	require.NoError(t, err)
	reductions := 0
	for _, e := range entries {
		if e.Kind == ledgerdomain.EntryKindReduce {
			reductions++
		}
	}
	assert.Equal(t, 1, reductions)

	var callbacks int64
	require.NoError(t, env.DB.Model(&paymentdomain.GatewayCallback{}).Where("txn_ref = ?", resp.TxnRef).Count(&callbacks).Error)
	assert.Equal(t, int64(2), callbacks)
}

func TestInvalidSignatureChangesNothing(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 10_000_000)
	resp := createPayment(t, env, order.ID, paymentdomain.PaymentTypeDeposit)

	values := env.CallbackValues(resp.TxnRef, resp.Amount, "00")
	values.Set("vnp_SecureHash", strings.Repeat("0", 128))

	got := env.Payments.HandleCallback(context.Background(), values)
	assert.Equal(t, paymentdomain.RspCodeInvalidSignature, got.RspCode)
	assert.Equal(t, int64(10_000_000), env.Outstanding(t, order.ID))

	payment, err := env.Payments.Get(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusPending, payment.GatewayStatus)

	var callbacks int64
	require.NoError(t, env.DB.Model(&paymentdomain.GatewayCallback{}).Count(&callbacks).Error)
	assert.Equal(t, int64(0), callbacks)
}

func TestUnknownTxnRef(t *testing.T) {
	env := testutil.New(t)
	got := env.Payments.HandleCallback(context.Background(), env.CallbackValues("01HZZZZZZZZZZZZZZZZZZZZZZZ", 1_000, "00"))
	assert.Equal(t, paymentdomain.RspCodeNotFound, got.RspCode)
}

func TestAmountMismatch(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 10_000_000)
	resp := createPayment(t, env, order.ID, paymentdomain.PaymentTypeDeposit)

	got := env.Payments.HandleCallback(context.Background(), env.CallbackValues(resp.TxnRef, resp.Amount-1, "00"))
	assert.Equal(t, paymentdomain.RspCodeInvalidAmount, got.RspCode)
	assert.Equal(t, int64(10_000_000), env.Outstanding(t, order.ID))

	payment, err := env.Payments.Get(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusPending, payment.GatewayStatus)

	// the genuine confirmation still goes through afterwards
	ok := env.Payments.HandleCallback(context.Background(), env.CallbackValues(resp.TxnRef, resp.Amount, "00"))
	assert.Equal(t, paymentdomain.RspCodeConfirmed, ok.RspCode)
}

func TestFailedTransactionHasNoLedgerEffect(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 10_000_000)
	resp := createPayment(t, env, order.ID, paymentdomain.PaymentTypeDeposit)

	got := env.Payments.HandleCallback(context.Background(), env.CallbackValues(resp.TxnRef, resp.Amount, "24"))
	assert.Equal(t, paymentdomain.RspCodeConfirmed, got.RspCode)
	assert.Equal(t, int64(10_000_000), env.Outstanding(t, order.ID))

	payment, err := env.Payments.Get(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusFailed, payment.GatewayStatus)
	require.NotNil(t, payment.RejectReason)

	replay := env.Payments.HandleCallback(context.Background(), env.CallbackValues(resp.TxnRef, resp.Amount, "00"))
	assert.Equal(t, paymentdomain.RspCodeAlreadyConfirmed, replay.RspCode)
	assert.Equal(t, int64(10_000_000), env.Outstanding(t, order.ID))
}

func TestStaleFullPaymentCannotOverpay(t *testing.T) {
	env := testutil.New(t)
	ctx := context.Background()
	order := env.ApprovedOrder(t, 1_000)

	full := createPayment(t, env, order.ID, paymentdomain.PaymentTypeFull)
	require.NoError(t, env.DB.Transaction(func(tx *gorm.DB) error {
		_, err := env.Payments.RecordConfirmed(ctx, tx, paymentdomain.ConfirmedPayment{
			SalesOrderID:  order.ID,
			PaymentType:   paymentdomain.PaymentTypeDeposit,
			PaymentMethod: paymentdomain.PaymentMethodCash,
			Amount:        400,
		})
		return err
	}))

	got := env.Payments.HandleCallback(ctx, env.CallbackValues(full.TxnRef, full.Amount, "00"))
	assert.Equal(t, paymentdomain.RspCodeInvalidAmount, got.RspCode)
	assert.Equal(t, int64(600), env.Outstanding(t, order.ID))

	payment, err := env.Payments.Get(ctx, full.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusFailed, payment.GatewayStatus)
	require.NotNil(t, payment.RejectReason)
	assert.Equal(t, service.OverpaidReason, *payment.RejectReason)
	require.NotNil(t, payment.GatewayResponseCode)
	assert.Equal(t, "00", *payment.GatewayResponseCode)

	logs, err := env.Audit.ListByTarget(ctx, "payment_remain", full.PaymentID.String())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, auditdomain.ActionPaymentOverpaid, logs[0].Action)

	// replays are acknowledged and the sweeper leaves the record alone
	again := env.Payments.HandleCallback(ctx, env.CallbackValues(full.TxnRef, full.Amount, "00"))
	assert.Equal(t, paymentdomain.RspCodeAlreadyConfirmed, again.RspCode)

	env.Clock.Advance(time.Hour)
	expired, err := env.Payments.ExpireStale(ctx, env.Clock.Now().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	payment, err = env.Payments.Get(ctx, full.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, service.OverpaidReason, *payment.RejectReason)
	assert.Equal(t, int64(600), env.Outstanding(t, order.ID))
}

func TestFullPaymentMarksOrderPaid(t *testing.T) {
	env := testutil.New(t)
	ctx := context.Background()
	order := env.ApprovedOrder(t, 2_500_000)

	full := createPayment(t, env, order.ID, paymentdomain.PaymentTypeFull)
	assert.Equal(t, int64(2_500_000), full.Amount)
	got := env.Payments.HandleCallback(ctx, env.CallbackValues(full.TxnRef, full.Amount, "00"))
	require.Equal(t, paymentdomain.RspCodeConfirmed, got.RspCode)

	updated, err := env.SalesOrders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, salesorderdomain.PaymentStatusPaid, updated.PaymentStatus)
	assert.NotNil(t, updated.PaidFullAt)

	debt, _, err := env.Ledger.GetBySalesOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), debt.DebtAmount)
	assert.Equal(t, ledgerdomain.DebtStatusDisabled, debt.Status)

	_, err = env.Payments.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{SalesOrderID: order.ID, PaymentType: paymentdomain.PaymentTypeFull})
	assert.ErrorIs(t, err, salesorderdomain.ErrOrderAlreadyPaid)
}

func TestVerifyReturnIsReadOnly(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 10_000_000)
	resp := createPayment(t, env, order.ID, paymentdomain.PaymentTypeDeposit)

	res, err := env.Payments.VerifyReturn(context.Background(), env.CallbackValues(resp.TxnRef, resp.Amount, "00"))
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, paymentdomain.GatewayStatusPending, res.GatewayStatus)
	assert.Equal(t, order.ID, res.SalesOrderID)
	assert.Equal(t, int64(10_000_000), env.Outstanding(t, order.ID))

	bad := env.CallbackValues(resp.TxnRef, resp.Amount, "00")
	bad.Set("vnp_Amount", "1")
	_, err = env.Payments.VerifyReturn(context.Background(), bad)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestRecordConfirmedValidation(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 1_000)

	err := env.DB.Transaction(func(tx *gorm.DB) error {
		_, err := env.Payments.RecordConfirmed(context.Background(), tx, paymentdomain.ConfirmedPayment{
			SalesOrderID:  order.ID,
			PaymentType:   paymentdomain.PaymentTypeDeposit,
			PaymentMethod: paymentdomain.PaymentMethodCash,
			Amount:        1_001,
		})
		return err
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrAmountExceedsDebt)
	assert.Equal(t, int64(1_000), env.Outstanding(t, order.ID))

	payments, err := env.Payments.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestExpireStaleFailsOnlyOldPendingPayments(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 1_000_000)

	old := createPayment(t, env, order.ID, paymentdomain.PaymentTypeDeposit)
	env.Clock.Advance(40 * time.Minute)
	fresh := createPayment(t, env, order.ID, paymentdomain.PaymentTypeFull)

	expired, err := env.Payments.ExpireStale(context.Background(), env.Clock.Now().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	payment, err := env.Payments.Get(context.Background(), old.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusFailed, payment.GatewayStatus)
	require.NotNil(t, payment.RejectReason)

	payment, err = env.Payments.Get(context.Background(), fresh.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusPending, payment.GatewayStatus)

	// a late confirmation for the expired checkout is acknowledged without booking
	resp := env.Payments.HandleCallback(context.Background(), env.CallbackValues(old.TxnRef, old.Amount, "00"))
	assert.Equal(t, paymentdomain.RspCodeAlreadyConfirmed, resp.RspCode)
	assert.Equal(t, int64(1_000_000), env.Outstanding(t, order.ID))

	logs, err := env.Audit.ListByTarget(context.Background(), "payment_remain", old.PaymentID.String())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, auditdomain.ActionPaymentExpire, logs[0].Action)

	again, err := env.Payments.ExpireStale(context.Background(), env.Clock.Now().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}
