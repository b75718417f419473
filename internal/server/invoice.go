package server

import (
	"fmt"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/pharmasettle/internal/invoice/domain"
)

type generateInvoiceRequest struct {
	SalesOrderID     string   `json:"sales_order_id"`
	PaymentRemainIDs []string `json:"payment_remain_ids"`
}

func (s *Server) GenerateInvoice(c *gin.Context) {
	var req generateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseSnowflakeID(req.SalesOrderID)
	if err != nil {
		AbortWithError(c, newValidationError("sales_order_id", "invalid_sales_order", "invalid sales_order_id"))
		return
	}

	paymentIDs := make([]snowflake.ID, 0, len(req.PaymentRemainIDs))
	for _, raw := range req.PaymentRemainIDs {
		id, err := parseSnowflakeID(raw)
		if err != nil {
			AbortWithError(c, newValidationError("payment_remain_ids", "invalid_payment", "invalid payment id"))
			return
		}
		paymentIDs = append(paymentIDs, id)
	}

	invoice, err := s.invoiceSvc.Generate(c.Request.Context(), invoicedomain.GenerateRequest{
		SalesOrderID:     orderID,
		PaymentRemainIDs: paymentIDs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultCreated, invoice)
}

func (s *Server) GetInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	invoice, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, invoice)
}

func (s *Server) ListSalesOrderInvoices(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	invoices, err := s.invoiceSvc.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, invoices)
}

func (s *Server) RenderInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	body, filename, err := s.invoiceSvc.Render(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", body)
}
