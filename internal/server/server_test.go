package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pharmasettle/internal/authorization"
	"github.com/smallbiznis/pharmasettle/internal/config"
	"github.com/smallbiznis/pharmasettle/internal/ratelimit"
	"github.com/smallbiznis/pharmasettle/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnvelope struct {
	StatusCode int               `json:"status_code"`
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Data       json.RawMessage   `json:"data"`
	Errors     []ValidationError `json:"errors"`
}

type actor struct {
	id   string
	role string
}

var (
	salesRep   = actor{"sales-1", authorization.RoleSales}
	manager    = actor{"manager-1", authorization.RoleManager}
	accountant = actor{"acct-1", authorization.RoleAccountant}
)

func newTestServer(t *testing.T, env *testutil.Env, limiter *ratelimit.CallbackLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := authorization.NewEnforcer()
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{AppName: "pharmasettle"},
		AuthzSvc:        authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		AuditSvc:        env.Audit,
		SalesOrderSvc:   env.SalesOrders,
		LedgerSvc:       env.Ledger,
		DepositSvc:      env.Deposits,
		PaymentSvc:      env.Payments,
		InvoiceSvc:      env.Invoices,
		CallbackLimiter: limiter,
	})
	return engine
}

func doRequest(t *testing.T, engine *gin.Engine, method, path string, as *actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set(HeaderActorID, as.id)
		req.Header.Set(HeaderActorRole, as.role)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, rec.Code, env.StatusCode)
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

type orderView struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	TotalPrice    int64  `json:"total_price"`
}

func TestSalesOrderLifecycleOverHTTP(t *testing.T) {
	env := testutil.New(t)
	engine := newTestServer(t, env, nil)
	customerID := env.SeedCustomer(t)
	lot := env.SeedLot(t, 25_000, 10)

	rec := doRequest(t, engine, http.MethodPost, "/api/sales-orders", &salesRep, map[string]any{
		"customer_id": customerID.String(),
		"items":       []map[string]any{{"lot_id": lot.ID.String(), "quantity": 4}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created orderView
	envelope := decodeEnvelope(t, rec, &created)
	assert.True(t, envelope.Success)
	assert.Equal(t, "DRAFT", created.Status)
	assert.Equal(t, int64(100_000), created.TotalPrice)

	rec = doRequest(t, engine, http.MethodPost, "/api/sales-orders/"+created.ID+"/submit", &salesRep, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, engine, http.MethodPost, "/api/sales-orders/"+created.ID+"/approve", &salesRep, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	envelope = decodeEnvelope(t, rec, nil)
	assert.False(t, envelope.Success)

	rec = doRequest(t, engine, http.MethodPost, "/api/sales-orders/"+created.ID+"/approve", &manager, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var approved orderView
	decodeEnvelope(t, rec, &approved)
	assert.Equal(t, "APPROVED", approved.Status)

	rec = doRequest(t, engine, http.MethodGet, "/api/sales-orders/"+created.ID+"/debt", &accountant, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var debt struct {
		Debt struct {
			DebtAmount int64  `json:"debt_amount"`
			Status     string `json:"status"`
		} `json:"debt"`
		Entries []struct {
			Kind string `json:"kind"`
		} `json:"entries"`
	}
	decodeEnvelope(t, rec, &debt)
	assert.Equal(t, int64(100_000), debt.Debt.DebtAmount)
	assert.Equal(t, "UNPAID", debt.Debt.Status)
	require.Len(t, debt.Entries, 1)
	assert.Equal(t, "OPEN", debt.Entries[0].Kind)

	rec = doRequest(t, engine, http.MethodPost, "/api/sales-orders/"+created.ID+"/approve", &manager, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectWithoutReasonIsValidationError(t *testing.T) {
	env := testutil.New(t)
	engine := newTestServer(t, env, nil)
	order := env.SentOrder(t, 50_000)

	rec := doRequest(t, engine, http.MethodPost, "/api/sales-orders/"+order.ID.String()+"/reject", &manager, map[string]string{"reason": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec, nil)
	require.Len(t, envelope.Errors, 1)
	assert.Equal(t, "reject_reason_required", envelope.Errors[0].Code)
}

func TestExpiredOrderApprovalIsValidationError(t *testing.T) {
	env := testutil.New(t)
	engine := newTestServer(t, env, nil)
	order := env.SentOrder(t, 50_000)
	env.Clock.Advance(order.ExpiredAt.Sub(env.Clock.Now()) + time.Minute)

	rec := doRequest(t, engine, http.MethodPost, "/api/sales-orders/"+order.ID.String()+"/approve", &manager, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec, nil)
	require.Len(t, envelope.Errors, 1)
	assert.Equal(t, "sales_order_expired", envelope.Errors[0].Code)
}

func TestExpiredOrderRejectionIsValidationError(t *testing.T) {
	env := testutil.New(t)
	engine := newTestServer(t, env, nil)
	order := env.SentOrder(t, 50_000)
	env.Clock.Advance(order.ExpiredAt.Sub(env.Clock.Now()) + time.Minute)

	rec := doRequest(t, engine, http.MethodPost, "/api/sales-orders/"+order.ID.String()+"/reject", &manager, map[string]string{"reason": "late"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec, nil)
	require.Len(t, envelope.Errors, 1)
	assert.Equal(t, "sales_order_expired", envelope.Errors[0].Code)
}

func TestRequestErrors(t *testing.T) {
	env := testutil.New(t)
	engine := newTestServer(t, env, nil)

	cases := []struct {
		name   string
		path   string
		as     *actor
		status int
		code   string
	}{
		{name: "missing actor", path: "/api/sales-orders", status: http.StatusUnauthorized},
		{name: "unknown role", path: "/api/sales-orders", as: &actor{"x-1", "guest"}, status: http.StatusForbidden},
		{name: "malformed id", path: "/api/sales-orders/abc", as: &salesRep, status: http.StatusBadRequest, code: "invalid_id"},
		{name: "unknown order", path: "/api/sales-orders/42", as: &salesRep, status: http.StatusNotFound},
		{name: "unknown invoice", path: "/api/invoices/42", as: &accountant, status: http.StatusNotFound},
		{name: "debt of unknown order", path: "/api/sales-orders/42/debt", as: &accountant, status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, engine, http.MethodGet, tc.path, tc.as, nil)
			assert.Equal(t, tc.status, rec.Code)
			envelope := decodeEnvelope(t, rec, nil)
			assert.False(t, envelope.Success)
			if tc.code != "" {
				require.NotEmpty(t, envelope.Errors)
				assert.Equal(t, tc.code, envelope.Errors[0].Code)
			}
		})
	}
}

func TestGatewayCallbackAnswersInGatewayFormat(t *testing.T) {
	env := testutil.New(t)
	engine := newTestServer(t, env, nil)
	order := env.ApprovedOrder(t, 1_000_000)

	rec := doRequest(t, engine, http.MethodPost, "/api/payments", &salesRep, map[string]string{
		"sales_order_id": order.ID.String(),
		"payment_type":   "deposit",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var checkout struct {
		TxnRef     string `json:"txnRef"`
		Amount     int64  `json:"amount"`
		PaymentURL string `json:"paymentUrl"`
	}
	decodeEnvelope(t, rec, &checkout)
	assert.Equal(t, int64(300_000), checkout.Amount)
	assert.NotEmpty(t, checkout.PaymentURL)

	values := env.CallbackValues(checkout.TxnRef, checkout.Amount, "00")
	ipn := func(query string) string {
		rec := doRequest(t, engine, http.MethodGet, "/api/payments/vnpay/ipn?"+query, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			RspCode string `json:"RspCode"`
			Message string `json:"Message"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.RspCode
	}

	assert.Equal(t, "00", ipn(values.Encode()))
	assert.Equal(t, "02", ipn(values.Encode()))

	tampered := env.CallbackValues(checkout.TxnRef, checkout.Amount, "00")
	tampered.Set("vnp_Amount", "1")
	assert.Equal(t, "97", ipn(tampered.Encode()))

	assert.Equal(t, int64(700_000), env.Outstanding(t, order.ID))

	rec = doRequest(t, engine, http.MethodGet, "/api/payments/vnpay/return?"+values.Encode(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Succeeded     bool   `json:"succeeded"`
		GatewayStatus string `json:"gateway_status"`
	}
	decodeEnvelope(t, rec, &result)
	assert.True(t, result.Succeeded)
	assert.Equal(t, "SUCCESS", result.GatewayStatus)

	rec = doRequest(t, engine, http.MethodGet, "/api/payments/vnpay/return?"+tampered.Encode(), nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackRateLimit(t *testing.T) {
	env := testutil.New(t)
	limiter, err := ratelimit.NewCallbackLimiter("1-M", nil)
	require.NoError(t, err)
	engine := newTestServer(t, env, limiter)

	first := doRequest(t, engine, http.MethodGet, "/api/payments/vnpay/ipn?vnp_TxnRef=x", nil, nil)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := doRequest(t, engine, http.MethodGet, "/api/payments/vnpay/ipn?vnp_TxnRef=x", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	envelope := decodeEnvelope(t, second, nil)
	assert.False(t, envelope.Success)
}

func TestDepositCheckToInvoiceOverHTTP(t *testing.T) {
	env := testutil.New(t)
	engine := newTestServer(t, env, nil)
	order := env.ApprovedOrder(t, 100_000)
	env.SeedDelivery(t, order.ID, 100_000, 0)
	base := "/api/sales-orders/" + order.ID.String()

	rec := doRequest(t, engine, http.MethodPost, base+"/deposit-checks", &salesRep, map[string]any{
		"requested_amount": 30_000,
		"payment_method":   "bank_transfer",
		"note":             "UNC 0001",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var check struct {
		ID              string `json:"id"`
		Status          string `json:"status"`
		PaymentRemainID string `json:"payment_remain_id"`
	}
	decodeEnvelope(t, rec, &check)
	assert.Equal(t, "PENDING", check.Status)

	rec = doRequest(t, engine, http.MethodPost, base+"/deposit-checks", &salesRep, map[string]any{
		"requested_amount": 10_000,
		"payment_method":   "cash",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, engine, http.MethodPost, "/api/deposit-checks/"+check.ID+"/approve", &salesRep, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, engine, http.MethodPost, "/api/deposit-checks/"+check.ID+"/approve", &accountant, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeEnvelope(t, rec, &check)
	assert.Equal(t, "APPROVED", check.Status)
	require.NotEmpty(t, check.PaymentRemainID)

	rec = doRequest(t, engine, http.MethodGet, base+"/deposit-checks", &salesRep, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var checks []struct {
		Status string `json:"status"`
	}
	decodeEnvelope(t, rec, &checks)
	require.Len(t, checks, 1)

	rec = doRequest(t, engine, http.MethodPost, "/api/invoices", &accountant, map[string]any{
		"sales_order_id":     order.ID.String(),
		"payment_remain_ids": []string{check.PaymentRemainID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var invoice struct {
		ID           string `json:"id"`
		Code         string `json:"code"`
		TotalDeposit int64  `json:"total_deposit"`
	}
	decodeEnvelope(t, rec, &invoice)
	assert.Equal(t, "INV-"+order.Code+"-01", invoice.Code)
	assert.Equal(t, int64(30_000), invoice.TotalDeposit)

	rec = doRequest(t, engine, http.MethodPost, "/api/invoices", &accountant, map[string]any{
		"sales_order_id":     order.ID.String(),
		"payment_remain_ids": []string{check.PaymentRemainID},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, engine, http.MethodGet, base+"/invoices", &salesRep, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var invoices []struct {
		Code string `json:"code"`
	}
	decodeEnvelope(t, rec, &invoices)
	require.Len(t, invoices, 1)

	rec = doRequest(t, engine, http.MethodGet, "/api/invoices/"+invoice.ID+"/pdf", &salesRep, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, engine, http.MethodGet, "/api/invoices/"+invoice.ID+"/pdf", &accountant, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), invoice.Code+".pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}
