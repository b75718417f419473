package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/pharmasettle/internal/config"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
)

const (
	version      = "2.1.0"
	command      = "pay"
	currencyCode = "VND"
	locale       = "vn"
	orderType    = "other"
	timeLayout   = "20060102150405"

	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"
)

// gatewayZone is the fixed GMT+7 offset the gateway stamps its dates in.
var gatewayZone = time.FixedZone("GMT+7", 7*60*60)

type Adapter struct {
	tmnCode    string
	hashSecret string
	payURL     string
	returnURL  string
}

func New(cfg config.GatewayConfig) (*Adapter, error) {
	tmnCode := strings.TrimSpace(cfg.TmnCode)
	secret := strings.TrimSpace(cfg.HashSecret)
	if tmnCode == "" || secret == "" {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}
	if _, err := url.Parse(cfg.PayURL); err != nil || strings.TrimSpace(cfg.PayURL) == "" {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}
	return &Adapter{
		tmnCode:    tmnCode,
		hashSecret: secret,
		payURL:     strings.TrimSpace(cfg.PayURL),
		returnURL:  strings.TrimSpace(cfg.ReturnURL),
	}, nil
}

func (a *Adapter) Method() paymentdomain.PaymentMethod {
	return paymentdomain.PaymentMethodVNPay
}

func (a *Adapter) CheckoutURL(req paymentdomain.CheckoutRequest) (string, error) {
	if strings.TrimSpace(req.TxnRef) == "" {
		return "", paymentdomain.ErrInvalidPayload
	}
	if req.Amount <= 0 {
		return "", paymentdomain.ErrInvalidAmount
	}

	params := url.Values{}
	params.Set("vnp_Version", version)
	params.Set("vnp_Command", command)
	params.Set("vnp_TmnCode", a.tmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*100, 10))
	params.Set("vnp_CurrCode", currencyCode)
	params.Set("vnp_TxnRef", req.TxnRef)
	params.Set("vnp_OrderInfo", req.OrderInfo)
	params.Set("vnp_OrderType", orderType)
	params.Set("vnp_Locale", locale)
	params.Set("vnp_ReturnUrl", a.returnURL)
	params.Set("vnp_IpAddr", clientIP(req.ClientIP))
	params.Set("vnp_CreateDate", req.CreatedAt.In(gatewayZone).Format(timeLayout))
	if !req.ExpireAt.IsZero() {
		params.Set("vnp_ExpireDate", req.ExpireAt.In(gatewayZone).Format(timeLayout))
	}

	signed := canonical(params)
	return a.payURL + "?" + signed + "&" + paramSecureHash + "=" + a.sign(signed), nil
}

func (a *Adapter) Verify(values url.Values) (*paymentdomain.GatewayResult, error) {
	received := strings.TrimSpace(values.Get(paramSecureHash))
	if received == "" {
		return nil, paymentdomain.ErrInvalidSignature
	}
	expected := a.sign(canonical(values))
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return nil, paymentdomain.ErrInvalidSignature
	}
	return parse(values)
}

// Sign returns the signed query string for the given fields. It is exported
// so callers can build well-formed notifications in tests and tooling.
func (a *Adapter) Sign(values url.Values) url.Values {
	out := url.Values{}
	for k, v := range values {
		out[k] = append([]string(nil), v...)
	}
	out.Del(paramSecureHash)
	out.Del(paramSecureHashType)
	out.Set(paramSecureHash, a.sign(canonical(out)))
	return out
}

func (a *Adapter) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(a.hashSecret))
	_, _ = mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonical encodes the non-empty vnp_ fields sorted by key, leaving out the hash fields.
func canonical(values url.Values) string {
	filtered := url.Values{}
	for key, vals := range values {
		if !strings.HasPrefix(key, "vnp_") || key == paramSecureHash || key == paramSecureHashType {
			continue
		}
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		filtered.Set(key, vals[0])
	}
	return filtered.Encode()
}

func parse(values url.Values) (*paymentdomain.GatewayResult, error) {
	txnRef := strings.TrimSpace(values.Get("vnp_TxnRef"))
	if txnRef == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}
	raw, err := strconv.ParseInt(strings.TrimSpace(values.Get("vnp_Amount")), 10, 64)
	if err != nil || raw < 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}

	result := &paymentdomain.GatewayResult{
		TxnRef:            txnRef,
		Amount:            raw / 100,
		ResponseCode:      strings.TrimSpace(values.Get("vnp_ResponseCode")),
		TransactionStatus: strings.TrimSpace(values.Get("vnp_TransactionStatus")),
		BankCode:          strings.TrimSpace(values.Get("vnp_BankCode")),
		BankTransactionNo: strings.TrimSpace(values.Get("vnp_BankTranNo")),
		GatewayTxnNo:      strings.TrimSpace(values.Get("vnp_TransactionNo")),
	}
	if raw%100 != 0 {
		// Sub-unit amounts can never match a VND record.
		result.Amount = -1
	}
	if payDate := strings.TrimSpace(values.Get("vnp_PayDate")); payDate != "" {
		t, err := time.ParseInLocation(timeLayout, payDate, gatewayZone)
		if err != nil {
			return nil, errors.Join(paymentdomain.ErrInvalidPayload, err)
		}
		utc := t.UTC()
		result.PayDate = &utc
	}
	return result, nil
}

func clientIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "127.0.0.1"
	}
	return ip
}
