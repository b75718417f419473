package testutil

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/smallbiznis/pharmasettle/internal/customer/domain"
	inventorydomain "github.com/smallbiznis/pharmasettle/internal/inventory/domain"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"github.com/stretchr/testify/require"
)

func (e *Env) SeedCustomer(t *testing.T) snowflake.ID {
	t.Helper()
	id := e.Node.Generate()
	require.NoError(t, e.DB.Create(&customerdomain.Customer{
		ID:        id,
		Name:      "Nha thuoc " + id.String(),
		Email:     fmt.Sprintf("customer-%s@example.com", id),
		Phone:     "0900000000",
		CreatedAt: e.Clock.Now(),
	}).Error)
	return id
}

// SeedLot stores a lot valid for a year.
func (e *Env) SeedLot(t *testing.T, unitPrice, quantity int64) inventorydomain.Lot {
	t.Helper()
	lot := inventorydomain.Lot{
		ID:         e.Node.Generate(),
		ProductID:  e.Node.Generate(),
		LotNumber:  "LOT-" + strconv.FormatInt(unitPrice, 10),
		ExpiryDate: e.Clock.Now().AddDate(1, 0, 0),
		Quantity:   quantity,
		UnitPrice:  unitPrice,
	}
	require.NoError(t, e.DB.Create(&lot).Error)
	return lot
}

// SeedDelivery stores a goods-issue note worth amount, delivered offset after the epoch.
func (e *Env) SeedDelivery(t *testing.T, orderID snowflake.ID, amount int64, offset time.Duration) snowflake.ID {
	t.Helper()
	note := inventorydomain.GoodsIssueNote{
		ID:           e.Node.Generate(),
		SalesOrderID: orderID,
		DeliveredAt:  Epoch.Add(offset),
		CreatedAt:    e.Clock.Now(),
	}
	note.Code = "GIN-" + note.ID.String()
	require.NoError(t, e.DB.Create(&note).Error)
	require.NoError(t, e.DB.Create(&inventorydomain.GoodsIssueNoteLine{
		ID:               e.Node.Generate(),
		GoodsIssueNoteID: note.ID,
		LotID:            e.Node.Generate(),
		Quantity:         1,
		UnitPrice:        amount,
	}).Error)
	return note.ID
}

// SentOrder creates and submits an order worth total.
func (e *Env) SentOrder(t *testing.T, total int64) *salesorderdomain.SalesOrder {
	t.Helper()
	ctx := ActorCtx("sales-1", "sales")
	customerID := e.SeedCustomer(t)
	lot := e.SeedLot(t, total, 10)

	order, err := e.SalesOrders.Create(ctx, salesorderdomain.CreateRequest{
		CustomerID: customerID,
		Items:      []salesorderdomain.ItemRequest{{LotID: lot.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	order, err = e.SalesOrders.Submit(ctx, order.ID)
	require.NoError(t, err)
	return order
}

// ApprovedOrder creates, submits and approves an order worth total.
func (e *Env) ApprovedOrder(t *testing.T, total int64) *salesorderdomain.SalesOrder {
	t.Helper()
	order := e.SentOrder(t, total)
	order, err := e.SalesOrders.Approve(ActorCtx("manager-1", "manager"), order.ID)
	require.NoError(t, err)
	return order
}

// Outstanding reads the order's current debt.
func (e *Env) Outstanding(t *testing.T, orderID snowflake.ID) int64 {
	t.Helper()
	debt, _, err := e.Ledger.GetBySalesOrder(context.Background(), orderID)
	require.NoError(t, err)
	return debt.DebtAmount
}

// CallbackValues builds a signed gateway notification.
func (e *Env) CallbackValues(txnRef string, amount int64, responseCode string) url.Values {
	v := url.Values{}
	v.Set("vnp_TmnCode", "TESTTMN1")
	v.Set("vnp_TxnRef", txnRef)
	v.Set("vnp_Amount", strconv.FormatInt(amount*100, 10))
	v.Set("vnp_ResponseCode", responseCode)
	v.Set("vnp_TransactionStatus", responseCode)
	v.Set("vnp_BankCode", "NCB")
	v.Set("vnp_BankTranNo", "VNP"+txnRef)
	v.Set("vnp_TransactionNo", "1422"+strconv.FormatInt(amount%10000, 10))
	v.Set("vnp_PayDate", Epoch.Add(7*time.Hour).Format("20060102150405"))
	return e.Gateway.Sign(v)
}
