package service_test

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/pharmasettle/internal/audit/domain"
	depositdomain "github.com/smallbiznis/pharmasettle/internal/deposit/domain"
	"github.com/smallbiznis/pharmasettle/internal/events"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"github.com/smallbiznis/pharmasettle/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submit(t *testing.T, env *testutil.Env, req depositdomain.SubmitRequest) *depositdomain.DepositCheck {
	t.Helper()
	check, err := env.Deposits.Submit(testutil.ActorCtx("sales-1", "sales"), req)
	require.NoError(t, err)
	return check
}

func TestSubmitCreatesPendingCheck(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 1_000_000)

	check := submit(t, env, depositdomain.SubmitRequest{
		SalesOrderID:    order.ID,
		RequestedAmount: 300_000,
		PaymentMethod:   paymentdomain.PaymentMethodBankTransfer,
		Note:            "  chuyen khoan VCB  ",
	})
	assert.Equal(t, depositdomain.CheckStatusPending, check.Status)
	assert.Equal(t, paymentdomain.PaymentTypeDeposit, check.PaymentType)
	assert.Equal(t, "sales-1", check.RequestedBy)
	assert.Equal(t, "chuyen khoan VCB", check.Note)
	assert.True(t, check.RequestedAt.Equal(testutil.Epoch))

	// submission alone moves no money
	assert.Equal(t, int64(1_000_000), env.Outstanding(t, order.ID))
}

// Scenario: a second claim while one is still under review.
func TestSecondPendingCheckIsRefused(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 1_000_000)
	req := depositdomain.SubmitRequest{
		SalesOrderID:    order.ID,
		RequestedAmount: 100_000,
		PaymentMethod:   paymentdomain.PaymentMethodCash,
	}
	first := submit(t, env, req)

	_, err := env.Deposits.Submit(context.Background(), req)
	assert.ErrorIs(t, err, depositdomain.ErrPendingCheckExists)

	checks, err := env.Deposits.List(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, checks, 1)

	// once reviewed a new claim may be filed
	_, err = env.Deposits.Reject(testutil.ActorCtx("acct-1", "accountant"), first.ID, "khong thay giao dich")
	require.NoError(t, err)
	submit(t, env, req)
}

func TestSubmitValidation(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 1_000_000)
	other := env.ApprovedOrder(t, 500_000)
	foreignNote := env.SeedDelivery(t, other.ID, 500_000, 0)
	ownNote := env.SeedDelivery(t, order.ID, 400_000, 0)
	sent := env.SentOrder(t, 1_000)

	cases := []struct {
		name string
		req  depositdomain.SubmitRequest
		want error
	}{
		{
			name: "zero amount",
			req:  depositdomain.SubmitRequest{SalesOrderID: order.ID, PaymentMethod: paymentdomain.PaymentMethodCash},
			want: depositdomain.ErrInvalidAmount,
		},
		{
			name: "gateway method",
			req:  depositdomain.SubmitRequest{SalesOrderID: order.ID, RequestedAmount: 10, PaymentMethod: paymentdomain.PaymentMethodVNPay},
			want: depositdomain.ErrInvalidPaymentMethod,
		},
		{
			name: "unknown type",
			req:  depositdomain.SubmitRequest{SalesOrderID: order.ID, RequestedAmount: 10, PaymentMethod: paymentdomain.PaymentMethodCash, PaymentType: "PARTIAL"},
			want: depositdomain.ErrInvalidPaymentType,
		},
		{
			name: "note on a deposit",
			req:  depositdomain.SubmitRequest{SalesOrderID: order.ID, RequestedAmount: 10, PaymentMethod: paymentdomain.PaymentMethodCash, GoodsIssueNoteID: &ownNote},
			want: depositdomain.ErrInvalidGoodsIssue,
		},
		{
			name: "note of another order",
			req: depositdomain.SubmitRequest{
				SalesOrderID:     order.ID,
				RequestedAmount:  10,
				PaymentMethod:    paymentdomain.PaymentMethodCash,
				PaymentType:      paymentdomain.PaymentTypeRemain,
				GoodsIssueNoteID: &foreignNote,
			},
			want: depositdomain.ErrInvalidGoodsIssue,
		},
		{
			name: "more than owed",
			req:  depositdomain.SubmitRequest{SalesOrderID: order.ID, RequestedAmount: 1_000_001, PaymentMethod: paymentdomain.PaymentMethodCash},
			want: depositdomain.ErrAmountExceedsDebt,
		},
		{
			name: "order not approved",
			req:  depositdomain.SubmitRequest{SalesOrderID: sent.ID, RequestedAmount: 10, PaymentMethod: paymentdomain.PaymentMethodCash},
			want: salesorderdomain.ErrOrderNotApproved,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Deposits.Submit(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// a remain claim may target its own delivery
	check := submit(t, env, depositdomain.SubmitRequest{
		SalesOrderID:     order.ID,
		RequestedAmount:  400_000,
		PaymentMethod:    paymentdomain.PaymentMethodBankTransfer,
		PaymentType:      paymentdomain.PaymentTypeRemain,
		GoodsIssueNoteID: &ownNote,
	})
	require.NotNil(t, check.GoodsIssueNoteID)
	assert.Equal(t, ownNote, *check.GoodsIssueNoteID)
}

func TestApproveRecordsPaymentAndReducesDebt(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 1_000_000)
	check := submit(t, env, depositdomain.SubmitRequest{
		SalesOrderID:    order.ID,
		RequestedAmount: 300_000,
		PaymentMethod:   paymentdomain.PaymentMethodBankTransfer,
	})

	env.Clock.Advance(2 * time.Hour)
	approved, err := env.Deposits.Approve(testutil.ActorCtx("acct-1", "accountant"), check.ID)
	require.NoError(t, err)
	assert.Equal(t, depositdomain.CheckStatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, "acct-1", *approved.ReviewedBy)
	require.NotNil(t, approved.PaymentRemainID)

	assert.Equal(t, int64(700_000), env.Outstanding(t, order.ID))

	payment, err := env.Payments.Get(context.Background(), *approved.PaymentRemainID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusSuccess, payment.GatewayStatus)
	assert.Equal(t, paymentdomain.PaymentMethodBankTransfer, payment.PaymentMethod)
	assert.Equal(t, int64(300_000), payment.Amount)
	require.NotNil(t, payment.DepositCheckID)
	assert.Equal(t, check.ID, *payment.DepositCheckID)
	assert.True(t, payment.RequestedAt.Equal(testutil.Epoch))

	updated, err := env.SalesOrders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, salesorderdomain.PaymentStatusPartiallyPaid, updated.PaymentStatus)

	logs, err := env.Audit.ListByTarget(context.Background(), "deposit_check", check.ID.String())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, auditdomain.ActionDepositCheckApprove, logs[0].Action)
	assert.Equal(t, "accountant", logs[0].ActorRole)

	sent := env.Notifier.Events()
	require.NotEmpty(t, sent)
	assert.Equal(t, events.TypeDepositCheckApproved, sent[len(sent)-1].Type)
	assert.Equal(t, int64(300_000), sent[len(sent)-1].Amount)

	_, err = env.Deposits.Approve(testutil.ActorCtx("acct-1", "accountant"), check.ID)
	assert.ErrorIs(t, err, depositdomain.ErrCheckNotPending)
	assert.Equal(t, int64(700_000), env.Outstanding(t, order.ID))
}

func TestApproveFullAmountClosesDebt(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 250_000)
	check := submit(t, env, depositdomain.SubmitRequest{
		SalesOrderID:    order.ID,
		RequestedAmount: 250_000,
		PaymentMethod:   paymentdomain.PaymentMethodCash,
		PaymentType:     paymentdomain.PaymentTypeFull,
	})

	_, err := env.Deposits.Approve(testutil.ActorCtx("admin-1", "admin"), check.ID)
	require.NoError(t, err)

	debt, _, err := env.Ledger.GetBySalesOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), debt.DebtAmount)
	assert.Equal(t, ledgerdomain.DebtStatusDisabled, debt.Status)

	updated, err := env.SalesOrders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, salesorderdomain.PaymentStatusPaid, updated.PaymentStatus)
}

func TestApproveRollsBackWhenDebtShrank(t *testing.T) {
	env := testutil.New(t)
	ctx := context.Background()
	order := env.ApprovedOrder(t, 1_000_000)
	check := submit(t, env, depositdomain.SubmitRequest{
		SalesOrderID:    order.ID,
		RequestedAmount: 900_000,
		PaymentMethod:   paymentdomain.PaymentMethodCash,
	})

	resp, err := env.Payments.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{SalesOrderID: order.ID, PaymentType: paymentdomain.PaymentTypeDeposit})
	require.NoError(t, err)
	got := env.Payments.HandleCallback(ctx, env.CallbackValues(resp.TxnRef, resp.Amount, "00"))
	require.Equal(t, paymentdomain.RspCodeConfirmed, got.RspCode)
	require.Equal(t, int64(700_000), env.Outstanding(t, order.ID))

	_, err = env.Deposits.Approve(testutil.ActorCtx("acct-1", "accountant"), check.ID)
	assert.ErrorIs(t, err, ledgerdomain.ErrAmountExceedsDebt)

	stored, err := env.Deposits.Get(ctx, check.ID)
	require.NoError(t, err)
	assert.Equal(t, depositdomain.CheckStatusPending, stored.Status)
	assert.Nil(t, stored.PaymentRemainID)
	assert.Equal(t, int64(700_000), env.Outstanding(t, order.ID))
}

func TestRejectHasNoLedgerEffect(t *testing.T) {
	env := testutil.New(t)
	order := env.ApprovedOrder(t, 1_000_000)
	check := submit(t, env, depositdomain.SubmitRequest{
		SalesOrderID:    order.ID,
		RequestedAmount: 300_000,
		PaymentMethod:   paymentdomain.PaymentMethodBankTransfer,
	})
	reviewer := testutil.ActorCtx("acct-1", "accountant")

	_, err := env.Deposits.Reject(reviewer, check.ID, "   ")
	assert.ErrorIs(t, err, depositdomain.ErrRejectReasonRequired)

	rejected, err := env.Deposits.Reject(reviewer, check.ID, "sai so tien")
	require.NoError(t, err)
	assert.Equal(t, depositdomain.CheckStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectReason)
	assert.Equal(t, "sai so tien", *rejected.RejectReason)
	assert.Nil(t, rejected.PaymentRemainID)

	assert.Equal(t, int64(1_000_000), env.Outstanding(t, order.ID))
	payments, err := env.Payments.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	sent := env.Notifier.Events()
	require.NotEmpty(t, sent)
	assert.Equal(t, events.TypeDepositCheckRejected, sent[len(sent)-1].Type)
	assert.Equal(t, "sai so tien", sent[len(sent)-1].Reason)

	_, err = env.Deposits.Approve(reviewer, check.ID)
	assert.ErrorIs(t, err, depositdomain.ErrCheckNotPending)
}

func TestGetUnknownCheck(t *testing.T) {
	env := testutil.New(t)
	_, err := env.Deposits.Get(context.Background(), env.Node.Generate())
	assert.ErrorIs(t, err, depositdomain.ErrCheckNotFound)
}

func TestApprovedCheckThenGatewayChargeForSameDebt(t *testing.T) {
	env := testutil.New(t)
	ctx := context.Background()
	order := env.ApprovedOrder(t, 1_000_000)

	checkout, err := env.Payments.CreatePayment(ctx, paymentdomain.CreatePaymentRequest{
		SalesOrderID: order.ID,
		PaymentType:  paymentdomain.PaymentTypeFull,
		ClientIP:     "10.0.0.8",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), checkout.Amount)

	check := submit(t, env, depositdomain.SubmitRequest{
		SalesOrderID:    order.ID,
		RequestedAmount: 300_000,
		PaymentMethod:   paymentdomain.PaymentMethodBankTransfer,
		Note:            "chuyen khoan coc",
	})
	_, err = env.Deposits.Approve(testutil.ActorCtx("acct-1", "accountant"), check.ID)
	require.NoError(t, err)
	require.Equal(t, int64(700_000), env.Outstanding(t, order.ID))

	// the gateway charge for the older full checkout now overshoots the debt
	got := env.Payments.HandleCallback(ctx, env.CallbackValues(checkout.TxnRef, checkout.Amount, "00"))
	assert.Equal(t, paymentdomain.RspCodeInvalidAmount, got.RspCode)
	assert.Equal(t, int64(700_000), env.Outstanding(t, order.ID))

	payment, err := env.Payments.Get(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.GatewayStatusFailed, payment.GatewayStatus)

	updated, err := env.SalesOrders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.NotEqual(t, salesorderdomain.PaymentStatusPaid, updated.PaymentStatus)
}
