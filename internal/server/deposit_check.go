package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	depositdomain "github.com/smallbiznis/pharmasettle/internal/deposit/domain"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
)

type submitDepositCheckRequest struct {
	RequestedAmount  int64  `json:"requested_amount"`
	PaymentMethod    string `json:"payment_method"`
	PaymentType      string `json:"payment_type"`
	GoodsIssueNoteID string `json:"goods_issue_note_id"`
	Note             string `json:"note"`
}

func (s *Server) SubmitDepositCheck(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req submitDepositCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	noteID, err := parseOptionalSnowflakeID(req.GoodsIssueNoteID)
	if err != nil {
		AbortWithError(c, newValidationError("goods_issue_note_id", "invalid_goods_issue_note", "invalid goods_issue_note_id"))
		return
	}

	check, err := s.depositSvc.Submit(c.Request.Context(), depositdomain.SubmitRequest{
		SalesOrderID:     orderID,
		RequestedAmount:  req.RequestedAmount,
		PaymentMethod:    paymentdomain.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.PaymentMethod))),
		PaymentType:      paymentdomain.PaymentType(strings.ToUpper(strings.TrimSpace(req.PaymentType))),
		GoodsIssueNoteID: noteID,
		Note:             strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultCreated, check)
}

func (s *Server) ListDepositChecks(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	checks, err := s.depositSvc.List(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, checks)
}

func (s *Server) GetDepositCheck(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	check, err := s.depositSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, check)
}

func (s *Server) ApproveDepositCheck(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	check, err := s.depositSvc.Approve(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, check)
}

func (s *Server) RejectDepositCheck(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	check, err := s.depositSvc.Reject(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, ResultOK, check)
}
