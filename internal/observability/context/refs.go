package context

import (
	"context"
	"strings"
)

const settlementRefsKey ctxKey = "obs.settlement_refs"

// SettlementRefs are the business identifiers a request or job acts on.
type SettlementRefs struct {
	SalesOrderID   string
	DepositCheckID string
	InvoiceID      string
	PaymentID      string
	TxnRef         string
}

func (r SettlementRefs) IsZero() bool {
	return r == SettlementRefs{}
}

// Pairs lists the non-empty refs as key/value pairs in a stable order.
func (r SettlementRefs) Pairs() [][2]string {
	out := make([][2]string, 0, 5)
	add := func(key, value string) {
		if value != "" {
			out = append(out, [2]string{key, value})
		}
	}
	add("sales_order_id", r.SalesOrderID)
	add("deposit_check_id", r.DepositCheckID)
	add("invoice_id", r.InvoiceID)
	add("payment_id", r.PaymentID)
	add("txn_ref", r.TxnRef)
	return out
}

// merge keeps existing values and fills the blanks from other.
func (r SettlementRefs) merge(other SettlementRefs) SettlementRefs {
	if r.SalesOrderID == "" {
		r.SalesOrderID = other.SalesOrderID
	}
	if r.DepositCheckID == "" {
		r.DepositCheckID = other.DepositCheckID
	}
	if r.InvoiceID == "" {
		r.InvoiceID = other.InvoiceID
	}
	if r.PaymentID == "" {
		r.PaymentID = other.PaymentID
	}
	if r.TxnRef == "" {
		r.TxnRef = other.TxnRef
	}
	return r
}

// WithSettlementRefs adds refs to the ones already carried by ctx.
func WithSettlementRefs(ctx context.Context, refs SettlementRefs) context.Context {
	if refs.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, settlementRefsKey, SettlementRefsFromContext(ctx).merge(refs))
}

func SettlementRefsFromContext(ctx context.Context) SettlementRefs {
	if ctx == nil {
		return SettlementRefs{}
	}
	refs, _ := ctx.Value(settlementRefsKey).(SettlementRefs)
	return refs
}

// RefsFromRoute maps the matched route's path id and the gateway txn ref
// query field onto settlement refs.
func RefsFromRoute(route string, param, query func(string) string) SettlementRefs {
	var refs SettlementRefs
	id := strings.TrimSpace(param("id"))
	switch {
	case id == "":
	case strings.HasPrefix(route, "/api/sales-orders/"):
		refs.SalesOrderID = id
	case strings.HasPrefix(route, "/api/deposit-checks/"):
		refs.DepositCheckID = id
	case strings.HasPrefix(route, "/api/invoices/"):
		refs.InvoiceID = id
	}
	if strings.HasPrefix(route, "/api/payments/vnpay/") {
		refs.TxnRef = strings.TrimSpace(query("vnp_TxnRef"))
	}
	return refs
}
