package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
)

type createPaymentRequest struct {
	SalesOrderID string `json:"sales_order_id"`
	PaymentType  string `json:"payment_type"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseSnowflakeID(req.SalesOrderID)
	if err != nil {
		AbortWithError(c, newValidationError("sales_order_id", "invalid_sales_order", "invalid sales_order_id"))
		return
	}

	resp, err := s.paymentSvc.CreatePayment(c.Request.Context(), paymentdomain.CreatePaymentRequest{
		SalesOrderID: orderID,
		PaymentType:  paymentdomain.PaymentType(strings.ToUpper(strings.TrimSpace(req.PaymentType))),
		ClientIP:     c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultCreated, resp)
}

func (s *Server) ListSalesOrderPayments(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	payments, err := s.paymentSvc.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, payments)
}

// HandleVNPayIPN answers in the gateway's own format. The gateway only reads
// RspCode, so every outcome is a 200.
func (s *Server) HandleVNPayIPN(c *gin.Context) {
	resp := s.paymentSvc.HandleCallback(c.Request.Context(), c.Request.URL.Query())
	c.JSON(http.StatusOK, resp)
}

func (s *Server) HandleVNPayReturn(c *gin.Context) {
	result, err := s.paymentSvc.VerifyReturn(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, result)
}
