package domain

import (
	"net/url"
	"time"
)

// CheckoutRequest carries what a hosted payment page needs.
type CheckoutRequest struct {
	TxnRef    string
	Amount    int64
	OrderInfo string
	ClientIP  string
	CreatedAt time.Time
	ExpireAt  time.Time
}

// GatewayResult is a verified gateway notification in canonical form.
type GatewayResult struct {
	TxnRef            string
	Amount            int64
	ResponseCode      string
	TransactionStatus string
	BankCode          string
	BankTransactionNo string
	GatewayTxnNo      string
	PayDate           *time.Time
}

// Succeeded reports whether both codes say the charge went through.
func (r GatewayResult) Succeeded() bool {
	return r.ResponseCode == "00" && r.TransactionStatus == "00"
}

// Gateway is a hosted-checkout payment gateway with signed callbacks.
type Gateway interface {
	Method() PaymentMethod
	CheckoutURL(req CheckoutRequest) (string, error)
	// Verify checks the callback signature and returns the parsed result.
	// It returns ErrInvalidSignature without touching any state.
	Verify(values url.Values) (*GatewayResult, error)
}
