package server

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"github.com/smallbiznis/pharmasettle/pkg/db/pagination"
)

type createSalesOrderItem struct {
	LotID    string `json:"lot_id"`
	Quantity int64  `json:"quantity"`
}

type createSalesOrderRequest struct {
	CustomerID string                 `json:"customer_id"`
	Items      []createSalesOrderItem `json:"items"`
	ExpiredAt  *time.Time             `json:"expired_at,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type debtResponse struct {
	Debt    *ledgerdomain.CustomerDebt `json:"debt"`
	Entries []ledgerdomain.DebtEntry   `json:"entries"`
}

func (s *Server) CreateSalesOrder(c *gin.Context) {
	var req createSalesOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID, err := parseSnowflakeID(req.CustomerID)
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer", "invalid customer_id"))
		return
	}

	items := make([]salesorderdomain.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		lotID, err := parseSnowflakeID(item.LotID)
		if err != nil {
			AbortWithError(c, newValidationError("lot_id", "invalid_lot", "invalid lot_id"))
			return
		}
		items = append(items, salesorderdomain.ItemRequest{
			LotID:    lotID,
			Quantity: item.Quantity,
		})
	}

	order, err := s.salesOrderSvc.Create(c.Request.Context(), salesorderdomain.CreateRequest{
		CustomerID: customerID,
		Items:      items,
		ExpiredAt:  req.ExpiredAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultCreated, order)
}

func (s *Server) ListSalesOrders(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CustomerID string `form:"customer_id"`
		Status     string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID, err := parseOptionalSnowflakeID(query.CustomerID)
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer", "invalid customer_id"))
		return
	}

	req := salesorderdomain.ListRequest{
		Pagination: query.Pagination,
		Status:     salesorderdomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
	}
	if customerID != nil {
		req.CustomerID = *customerID
	}

	resp, err := s.salesOrderSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, resp)
}

func (s *Server) GetSalesOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, err := s.salesOrderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, order)
}

func (s *Server) SubmitSalesOrder(c *gin.Context) {
	s.transitionSalesOrder(c, s.salesOrderSvc.Submit)
}

func (s *Server) ApproveSalesOrder(c *gin.Context) {
	s.transitionSalesOrder(c, s.salesOrderSvc.Approve)
}

func (s *Server) RejectSalesOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.salesOrderSvc.Reject(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, order)
}

func (s *Server) transitionSalesOrder(c *gin.Context, transition func(ctx context.Context, id snowflake.ID) (*salesorderdomain.SalesOrder, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, err := transition(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, order)
}

func (s *Server) GetSalesOrderDebt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	debt, entries, err := s.ledgerSvc.GetBySalesOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, debtResponse{Debt: debt, Entries: entries})
}

func (s *Server) ListSalesOrderAuditLogs(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	logs, err := s.auditSvc.ListByTarget(c.Request.Context(), "sales_order", id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, logs)
}
