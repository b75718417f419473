// Package allocation splits confirmed payments across deliveries.
//
// Deposit and full payments form a lump that is shared pro-rata by goods
// value. Remain payments tied to a delivery go to that delivery; untied
// remain payments are shared pro-rata like the lump. Every pro-rata share is
// floored and the remainder lands on the last delivery, so the shares always
// sum to the amount being split.
package allocation

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/pharmasettle/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
)

// Delivery is an eligible goods-issue note in allocation order.
type Delivery struct {
	GoodsIssueNoteID snowflake.ID
	Amount           int64
}

type Payment struct {
	ID               snowflake.ID
	Type             paymentdomain.PaymentType
	Amount           int64
	GoodsIssueNoteID *snowflake.ID
}

type Line struct {
	GoodsIssueNoteID snowflake.ID
	GoodsIssueAmount int64
	AllocatedDeposit int64
	PaidRemain       int64
	TotalPaidForNote int64
	NoteBalance      int64
}

type Result struct {
	Lines        []Line
	TotalAmount  int64
	TotalDeposit int64
	TotalRemain  int64
	TotalPaid    int64
}

// Allocate computes one invoice's lines. deliveries must already be ordered
// by delivery date then id.
func Allocate(deliveries []Delivery, payments []Payment) (Result, error) {
	if len(deliveries) == 0 {
		return Result{}, invoicedomain.ErrNoEligibleDeliveries
	}

	index := make(map[snowflake.ID]int, len(deliveries))
	weights := make([]int64, len(deliveries))
	for i, d := range deliveries {
		index[d.GoodsIssueNoteID] = i
		weights[i] = d.Amount
	}

	var lump, untargeted int64
	targeted := make([]int64, len(deliveries))
	for _, p := range payments {
		switch p.Type {
		case paymentdomain.PaymentTypeDeposit, paymentdomain.PaymentTypeFull:
			lump += p.Amount
		case paymentdomain.PaymentTypeRemain:
			if p.GoodsIssueNoteID == nil {
				untargeted += p.Amount
				continue
			}
			i, ok := index[*p.GoodsIssueNoteID]
			if !ok {
				return Result{}, invoicedomain.ErrTargetNotEligible
			}
			targeted[i] += p.Amount
		default:
			return Result{}, paymentdomain.ErrInvalidPaymentType
		}
	}

	deposits := Split(lump, weights)
	remains := Split(untargeted, weights)

	res := Result{Lines: make([]Line, len(deliveries))}
	for i, d := range deliveries {
		paidRemain := targeted[i] + remains[i]
		totalPaid := deposits[i] + paidRemain
		line := Line{
			GoodsIssueNoteID: d.GoodsIssueNoteID,
			GoodsIssueAmount: d.Amount,
			AllocatedDeposit: deposits[i],
			PaidRemain:       paidRemain,
			TotalPaidForNote: totalPaid,
			NoteBalance:      d.Amount - totalPaid,
		}
		if line.NoteBalance < 0 {
			return Result{}, invoicedomain.ErrOverAllocated
		}
		res.Lines[i] = line
		res.TotalAmount += d.Amount
		res.TotalDeposit += line.AllocatedDeposit
		res.TotalPaid += totalPaid
	}
	res.TotalRemain = res.TotalAmount - res.TotalDeposit
	return res, nil
}

// Split shares amount across weights pro-rata. Shares are floored and the
// last weight takes the remainder. When all weights are zero the last weight
// takes everything.
func Split(amount int64, weights []int64) []int64 {
	shares := make([]int64, len(weights))
	if len(weights) == 0 || amount == 0 {
		return shares
	}

	var total int64
	for _, w := range weights {
		total += w
	}
	last := len(weights) - 1
	if total == 0 {
		shares[last] = amount
		return shares
	}

	amt := decimal.NewFromInt(amount)
	denom := decimal.NewFromInt(total)
	var assigned int64
	for i := 0; i < last; i++ {
		q, _ := amt.Mul(decimal.NewFromInt(weights[i])).QuoRem(denom, 0)
		shares[i] = q.IntPart()
		assigned += shares[i]
	}
	shares[last] = amount - assigned
	return shares
}
