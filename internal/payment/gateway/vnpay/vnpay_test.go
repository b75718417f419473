package vnpay

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/pharmasettle/internal/config"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(config.GatewayConfig{
		TmnCode:    "TESTTMN1",
		HashSecret: "SECRETKEY",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "http://localhost:8080/api/payments/vnpay/return",
	})
	require.NoError(t, err)
	return a
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(config.GatewayConfig{PayURL: "https://pay.example"})
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayNotConfigured)
}

func TestCheckoutURLIsSigned(t *testing.T) {
	a := newAdapter(t)
	created := time.Date(2026, 3, 1, 1, 30, 0, 0, time.UTC)

	raw, err := a.CheckoutURL(paymentdomain.CheckoutRequest{
		TxnRef:    "01HZX0TXNREF",
		Amount:    3_000_000,
		OrderInfo: "Deposit SO-20260301-ABC",
		ClientIP:  "10.1.2.3",
		CreatedAt: created,
		ExpireAt:  created.Add(15 * time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "300000000", q.Get("vnp_Amount"))
	assert.Equal(t, "VND", q.Get("vnp_CurrCode"))
	assert.Equal(t, "20260301083000", q.Get("vnp_CreateDate"))
	assert.Equal(t, "20260301084500", q.Get("vnp_ExpireDate"))
	assert.Equal(t, "TESTTMN1", q.Get("vnp_TmnCode"))
	assert.NotEmpty(t, q.Get("vnp_SecureHash"))
	assert.Equal(t, a.sign(canonical(q)), q.Get("vnp_SecureHash"))
}

func TestCheckoutURLRejectsBadInput(t *testing.T) {
	a := newAdapter(t)
	_, err := a.CheckoutURL(paymentdomain.CheckoutRequest{TxnRef: "x", Amount: 0})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
	_, err = a.CheckoutURL(paymentdomain.CheckoutRequest{Amount: 10})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func callbackValues() url.Values {
	v := url.Values{}
	v.Set("vnp_TmnCode", "TESTTMN1")
	v.Set("vnp_TxnRef", "01HZX0TXNREF")
	v.Set("vnp_Amount", "300000000")
	v.Set("vnp_ResponseCode", "00")
	v.Set("vnp_TransactionStatus", "00")
	v.Set("vnp_BankCode", "NCB")
	v.Set("vnp_BankTranNo", "VNP14226112")
	v.Set("vnp_TransactionNo", "14226112")
	v.Set("vnp_PayDate", "20260301084000")
	v.Set("vnp_OrderInfo", "Deposit SO-20260301-ABC")
	return v
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	a := newAdapter(t)
	signed := a.Sign(callbackValues())

	res, err := a.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "01HZX0TXNREF", res.TxnRef)
	assert.Equal(t, int64(3_000_000), res.Amount)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "VNP14226112", res.BankTransactionNo)
	require.NotNil(t, res.PayDate)
	assert.Equal(t, time.Date(2026, 3, 1, 1, 40, 0, 0, time.UTC), *res.PayDate)
}

func TestVerifyIgnoresHashTypeAndCase(t *testing.T) {
	a := newAdapter(t)
	signed := a.Sign(callbackValues())
	signed.Set("vnp_SecureHashType", "HmacSHA512")
	signed.Set("vnp_SecureHash", strings.ToUpper(signed.Get("vnp_SecureHash")))

	_, err := a.Verify(signed)
	assert.NoError(t, err)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	a := newAdapter(t)
	signed := a.Sign(callbackValues())
	signed.Set("vnp_Amount", "100")

	_, err := a.Verify(signed)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestVerifyRejectsMissingHash(t *testing.T) {
	a := newAdapter(t)
	_, err := a.Verify(callbackValues())
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	a := newAdapter(t)
	other, err := New(config.GatewayConfig{TmnCode: "TESTTMN1", HashSecret: "OTHER", PayURL: "https://pay.example"})
	require.NoError(t, err)

	_, err = a.Verify(other.Sign(callbackValues()))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestFailedTransactionIsNotSuccess(t *testing.T) {
	a := newAdapter(t)
	v := callbackValues()
	v.Set("vnp_ResponseCode", "24")
	v.Set("vnp_TransactionStatus", "02")

	res, err := a.Verify(a.Sign(v))
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
}
