package allocation

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/pharmasettle/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(id snowflake.ID) *snowflake.ID { return &id }

func sum(xs []int64) int64 {
	var s int64
	for _, x := range xs {
		s += x
	}
	return s
}

func TestSplitRemainderGoesToLast(t *testing.T) {
	shares := Split(100, []int64{1, 1, 1})
	assert.Equal(t, []int64{33, 33, 34}, shares)
}

func TestSplitConservesAmount(t *testing.T) {
	cases := []struct {
		amount  int64
		weights []int64
	}{
		{1_234_567, []int64{300_000, 700_000, 1}},
		{3_000_000, []int64{4_000_000, 6_000_000}},
		{7, []int64{3, 3, 3, 3}},
		{999_999_999_999, []int64{999_999_999_999, 1}},
	}
	for _, tc := range cases {
		shares := Split(tc.amount, tc.weights)
		assert.Equal(t, tc.amount, sum(shares))
		for _, s := range shares {
			assert.GreaterOrEqual(t, s, int64(0))
		}
	}
}

func TestSplitZeroWeights(t *testing.T) {
	assert.Equal(t, []int64{0, 0, 500}, Split(500, []int64{0, 0, 0}))
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, Split(500, nil))
	assert.Equal(t, []int64{0, 0}, Split(0, []int64{5, 5}))
}

// Scenario: a 30% deposit of a 10,000,000 order split over two deliveries.
func TestAllocateDepositProRata(t *testing.T) {
	deliveries := []Delivery{
		{GoodsIssueNoteID: 1, Amount: 4_000_000},
		{GoodsIssueNoteID: 2, Amount: 6_000_000},
	}
	payments := []Payment{
		{ID: 10, Type: paymentdomain.PaymentTypeDeposit, Amount: 3_000_000},
	}

	res, err := Allocate(deliveries, payments)
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)

	assert.Equal(t, int64(1_200_000), res.Lines[0].AllocatedDeposit)
	assert.Equal(t, int64(1_800_000), res.Lines[1].AllocatedDeposit)
	assert.Equal(t, int64(2_800_000), res.Lines[0].NoteBalance)
	assert.Equal(t, int64(4_200_000), res.Lines[1].NoteBalance)

	assert.Equal(t, int64(10_000_000), res.TotalAmount)
	assert.Equal(t, int64(3_000_000), res.TotalDeposit)
	assert.Equal(t, int64(7_000_000), res.TotalRemain)
	assert.Equal(t, int64(3_000_000), res.TotalPaid)
	assert.Equal(t, res.TotalAmount, res.TotalDeposit+res.TotalRemain)
}

func TestAllocateTargetedAndUntargetedRemain(t *testing.T) {
	deliveries := []Delivery{
		{GoodsIssueNoteID: 1, Amount: 1_000},
		{GoodsIssueNoteID: 2, Amount: 2_000},
	}
	payments := []Payment{
		{ID: 10, Type: paymentdomain.PaymentTypeDeposit, Amount: 300},
		{ID: 11, Type: paymentdomain.PaymentTypeRemain, Amount: 700, GoodsIssueNoteID: ptr(1)},
		{ID: 12, Type: paymentdomain.PaymentTypeRemain, Amount: 301},
	}

	res, err := Allocate(deliveries, payments)
	require.NoError(t, err)

	assert.Equal(t, int64(100), res.Lines[0].AllocatedDeposit)
	assert.Equal(t, int64(200), res.Lines[1].AllocatedDeposit)
	// untargeted 301 split 1:2 -> 100 and 201
	assert.Equal(t, int64(800), res.Lines[0].PaidRemain)
	assert.Equal(t, int64(201), res.Lines[1].PaidRemain)
	assert.Equal(t, int64(100), res.Lines[0].NoteBalance)
	assert.Equal(t, int64(1_599), res.Lines[1].NoteBalance)

	var paidRemain int64
	for _, l := range res.Lines {
		assert.Equal(t, l.AllocatedDeposit+l.PaidRemain, l.TotalPaidForNote)
		assert.Equal(t, l.GoodsIssueAmount-l.TotalPaidForNote, l.NoteBalance)
		paidRemain += l.PaidRemain
	}
	assert.Equal(t, res.TotalDeposit+paidRemain, res.TotalPaid)
}

func TestAllocateFullPaymentSettlesEverything(t *testing.T) {
	deliveries := []Delivery{
		{GoodsIssueNoteID: 1, Amount: 333},
		{GoodsIssueNoteID: 2, Amount: 333},
		{GoodsIssueNoteID: 3, Amount: 334},
	}
	res, err := Allocate(deliveries, []Payment{{ID: 9, Type: paymentdomain.PaymentTypeFull, Amount: 1_000}})
	require.NoError(t, err)
	for _, l := range res.Lines {
		assert.Equal(t, int64(0), l.NoteBalance)
	}
	assert.Equal(t, int64(1_000), res.TotalPaid)
}

func TestAllocateZeroValueDeliveries(t *testing.T) {
	deliveries := []Delivery{
		{GoodsIssueNoteID: 1, Amount: 0},
		{GoodsIssueNoteID: 2, Amount: 0},
	}
	_, err := Allocate(deliveries, []Payment{{ID: 9, Type: paymentdomain.PaymentTypeDeposit, Amount: 10}})
	assert.ErrorIs(t, err, invoicedomain.ErrOverAllocated)

	res, err := Allocate(deliveries, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.TotalPaid)
}

func TestAllocateOverAllocation(t *testing.T) {
	deliveries := []Delivery{{GoodsIssueNoteID: 1, Amount: 500}}
	_, err := Allocate(deliveries, []Payment{
		{ID: 1, Type: paymentdomain.PaymentTypeDeposit, Amount: 300},
		{ID: 2, Type: paymentdomain.PaymentTypeRemain, Amount: 300, GoodsIssueNoteID: ptr(1)},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrOverAllocated)
}

func TestAllocateTargetMustBeEligible(t *testing.T) {
	deliveries := []Delivery{{GoodsIssueNoteID: 1, Amount: 500}}
	_, err := Allocate(deliveries, []Payment{
		{ID: 2, Type: paymentdomain.PaymentTypeRemain, Amount: 100, GoodsIssueNoteID: ptr(99)},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrTargetNotEligible)
}

func TestAllocateRequiresDeliveries(t *testing.T) {
	_, err := Allocate(nil, nil)
	assert.ErrorIs(t, err, invoicedomain.ErrNoEligibleDeliveries)
}
