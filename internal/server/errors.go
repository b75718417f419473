package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pharmasettle/internal/authorization"
	depositdomain "github.com/smallbiznis/pharmasettle/internal/deposit/domain"
	inventorydomain "github.com/smallbiznis/pharmasettle/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/pharmasettle/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"github.com/smallbiznis/pharmasettle/pkg/db"
	"gorm.io/gorm"
)

// ResultKind is the closed set of outcomes an endpoint can report.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultCreated
	ResultValidation
	ResultUnauthorized
	ResultForbidden
	ResultNotFound
	ResultConflict
	ResultTooManyRequests
	ResultInternal
)

func (k ResultKind) StatusCode() int {
	switch k {
	case ResultOK:
		return http.StatusOK
	case ResultCreated:
		return http.StatusCreated
	case ResultValidation:
		return http.StatusBadRequest
	case ResultUnauthorized:
		return http.StatusUnauthorized
	case ResultForbidden:
		return http.StatusForbidden
	case ResultNotFound:
		return http.StatusNotFound
	case ResultConflict:
		return http.StatusConflict
	case ResultTooManyRequests:
		return http.StatusTooManyRequests
	case ResultInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (k ResultKind) Message() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultCreated:
		return "created"
	case ResultValidation:
		return "validation error"
	case ResultUnauthorized:
		return "unauthorized"
	case ResultForbidden:
		return "forbidden"
	case ResultNotFound:
		return "not found"
	case ResultConflict:
		return "conflict"
	case ResultTooManyRequests:
		return "too many requests"
	case ResultInternal:
		return "internal server error"
	default:
		return "internal server error"
	}
}

func (k ResultKind) Success() bool {
	return k == ResultOK || k == ResultCreated
}

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

// Envelope wraps every JSON response.
type Envelope struct {
	StatusCode int               `json:"status_code"`
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Data       any               `json:"data,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		kind, details := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(kind.StatusCode(), Envelope{
			StatusCode: kind.StatusCode(),
			Success:    false,
			Message:    kind.Message(),
			Errors:     details,
		})
	}
}

func respond(c *gin.Context, kind ResultKind, data any) {
	c.JSON(kind.StatusCode(), Envelope{
		StatusCode: kind.StatusCode(),
		Success:    kind.Success(),
		Message:    kind.Message(),
		Data:       data,
	})
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (ResultKind, []ValidationError) {
	if err == nil {
		return ResultInternal, nil
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return ResultValidation, vErr.Errors
	}

	kind := classifyError(err)
	if kind == ResultValidation {
		code := err.Error()
		return ResultValidation, []ValidationError{
			{
				Field:   validationErrorField(code),
				Code:    code,
				Message: validationErrorMessage(code),
			},
		}
	}
	return kind, nil
}

func classifyError(err error) ResultKind {
	switch {
	case err == nil:
		return ResultInternal
	case asValidationErrors(err) != nil, isValidationError(err):
		return ResultValidation
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return ResultUnauthorized
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return ResultForbidden
	case isNotFoundError(err):
		return ResultNotFound
	case isConflictError(err):
		return ResultConflict
	case errors.Is(err, ErrRateLimited):
		return ResultTooManyRequests
	default:
		return ResultInternal
	}
}

// classifyErrorForLog feeds the request logger with a stable error type.
func classifyErrorForLog(err error) (string, string) {
	kind := classifyError(err)
	switch kind {
	case ResultValidation:
		return "validation_error", safeErrorCode(err)
	case ResultUnauthorized:
		return "unauthorized", "unauthorized"
	case ResultForbidden:
		return "forbidden", "forbidden"
	case ResultNotFound:
		return "not_found", safeErrorCode(err)
	case ResultConflict:
		return "conflict", safeErrorCode(err)
	case ResultTooManyRequests:
		return "rate_limited", "rate_limited"
	default:
		return "internal_error", "internal_error"
	}
}

func safeErrorCode(err error) string {
	if vErr := asValidationErrors(err); vErr != nil && len(vErr.Errors) > 0 {
		return vErr.Errors[0].Code
	}
	return err.Error()
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isSalesOrderValidationError(err),
		isDepositValidationError(err),
		isPaymentValidationError(err),
		isInvoiceValidationError(err):
		return true
	case errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidSource),
		errors.Is(err, inventorydomain.ErrLotNotFound):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, salesorderdomain.ErrOrderNotFound),
		errors.Is(err, ledgerdomain.ErrDebtNotFound),
		errors.Is(err, depositdomain.ErrCheckNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, inventorydomain.ErrGoodsIssueNoteNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, db.ErrConcurrentUpdate),
		errors.Is(err, salesorderdomain.ErrInvalidTransition),
		errors.Is(err, salesorderdomain.ErrOrderNotApproved),
		errors.Is(err, salesorderdomain.ErrOrderAlreadyPaid),
		errors.Is(err, ledgerdomain.ErrDebtAlreadyOpen),
		errors.Is(err, ledgerdomain.ErrDebtDisabled),
		errors.Is(err, ledgerdomain.ErrAmountExceedsDebt),
		errors.Is(err, depositdomain.ErrAmountExceedsDebt),
		errors.Is(err, depositdomain.ErrPendingCheckExists),
		errors.Is(err, depositdomain.ErrCheckNotPending),
		errors.Is(err, paymentdomain.ErrDepositAlreadyPaid),
		errors.Is(err, paymentdomain.ErrNothingOutstanding),
		errors.Is(err, paymentdomain.ErrPaymentNotPending),
		errors.Is(err, paymentdomain.ErrPaymentAllocated),
		errors.Is(err, paymentdomain.ErrCallbackInProgress),
		errors.Is(err, invoicedomain.ErrPaymentMissing),
		errors.Is(err, invoicedomain.ErrPaymentNotEligible),
		errors.Is(err, invoicedomain.ErrNoEligibleDeliveries),
		errors.Is(err, invoicedomain.ErrTargetNotEligible),
		errors.Is(err, invoicedomain.ErrOverAllocated),
		errors.Is(err, invoicedomain.ErrDeliveryAlreadyInvoice):
		return true
	default:
		return false
	}
}

// Expiry is a state error but callers see it as a rejected request.
func isSalesOrderValidationError(err error) bool {
	switch {
	case errors.Is(err, salesorderdomain.ErrInvalidCustomer),
		errors.Is(err, salesorderdomain.ErrInvalidItems),
		errors.Is(err, salesorderdomain.ErrInvalidQuantity),
		errors.Is(err, salesorderdomain.ErrDuplicateLot),
		errors.Is(err, salesorderdomain.ErrInsufficientStock),
		errors.Is(err, salesorderdomain.ErrLotExpired),
		errors.Is(err, salesorderdomain.ErrInvalidExpiry),
		errors.Is(err, salesorderdomain.ErrInvalidPageToken),
		errors.Is(err, salesorderdomain.ErrRejectReasonRequired),
		errors.Is(err, salesorderdomain.ErrOrderExpired):
		return true
	default:
		return false
	}
}

func isDepositValidationError(err error) bool {
	switch {
	case errors.Is(err, depositdomain.ErrInvalidAmount),
		errors.Is(err, depositdomain.ErrInvalidPaymentMethod),
		errors.Is(err, depositdomain.ErrInvalidPaymentType),
		errors.Is(err, depositdomain.ErrInvalidGoodsIssue),
		errors.Is(err, depositdomain.ErrRejectReasonRequired):
		return true
	default:
		return false
	}
}

func isPaymentValidationError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidPaymentType),
		errors.Is(err, paymentdomain.ErrInvalidPaymentMethod),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrInvalidPayload):
		return true
	default:
		return false
	}
}

func isInvoiceValidationError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidSalesOrder),
		errors.Is(err, invoicedomain.ErrDuplicatePayment):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch {
	case code == "invalid_request":
		return "request"
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	case strings.HasPrefix(code, "sales_order_"):
		return "sales_order"
	default:
		return ""
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "sales_order_expired":
		return "sales order has expired"
	case "insufficient_stock":
		return "not enough stock in lot"
	default:
		return "invalid value"
	}
}
