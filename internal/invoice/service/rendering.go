package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	inventorydomain "github.com/smallbiznis/pharmasettle/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/pharmasettle/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/pharmasettle/internal/invoice/format"
	"github.com/smallbiznis/pharmasettle/internal/providers/pdf"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type renderResult struct {
	out []byte
	err error
}

// Render returns the invoice PDF and a download file name.
func (s *Service) Render(ctx context.Context, id snowflake.ID) ([]byte, string, error) {
	if s.renderer == nil {
		return nil, "", invoicedomain.ErrRendererNotConfigured
	}

	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	doc, err := s.buildDocument(ctx, invoice)
	if err != nil {
		return nil, "", err
	}

	rctx, cancel := context.WithTimeout(ctx, s.renderTimeout)
	defer cancel()

	done := make(chan renderResult, 1)
	go func() {
		out, err := s.renderer.RenderInvoice(rctx, doc)
		done <- renderResult{out: out, err: err}
	}()

	select {
	case <-rctx.Done():
		s.log.Warn("invoice render timed out", zap.String("invoice_id", id.String()))
		return nil, "", invoicedomain.ErrRenderTimeout
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return nil, "", invoicedomain.ErrRenderTimeout
			}
			return nil, "", res.err
		}
		return res.out, invoice.Code + ".pdf", nil
	}
}

func (s *Service) buildDocument(ctx context.Context, invoice *invoicedomain.Invoice) (pdf.InvoiceDocument, error) {
	order, err := s.salesOrders.Get(ctx, invoice.SalesOrderID)
	if err != nil {
		return pdf.InvoiceDocument{}, err
	}

	doc := pdf.InvoiceDocument{
		SellerName:    s.sellerName,
		InvoiceCode:   invoice.Code,
		OrderCode:     order.Code,
		IssuedAt:      invoice.IssuedAt.Format(dateLayout),
		PaymentStatus: string(invoice.PaymentStatus),
		TotalAmount:   invoiceformat.VND(invoice.TotalAmount),
		TotalDeposit:  invoiceformat.VND(invoice.TotalDeposit),
		TotalRemain:   invoiceformat.VND(invoice.TotalRemain),
		TotalPaid:     invoiceformat.VND(invoice.TotalPaid),
		AmountDue:     invoiceformat.VND(invoice.TotalAmount - invoice.TotalPaid),
	}

	customer, err := s.customers.FindByID(ctx, s.db, order.CustomerID)
	if err != nil {
		return pdf.InvoiceDocument{}, err
	}
	if customer != nil {
		doc.CustomerName = customer.Name
		doc.CustomerEmail = customer.Email
		doc.CustomerPhone = customer.Phone
	}

	for _, d := range invoice.Details {
		line := pdf.InvoiceLine{
			NoteCode:         d.GoodsIssueNoteID.String(),
			GoodsAmount:      invoiceformat.VND(d.GoodsIssueAmount),
			AllocatedDeposit: invoiceformat.VND(d.AllocatedDeposit),
			PaidRemain:       invoiceformat.VND(d.PaidRemain),
			Balance:          invoiceformat.VND(d.NoteBalance),
		}
		note, err := s.inventory.GetGoodsIssueNote(ctx, s.db, d.GoodsIssueNoteID)
		if err != nil && !errors.Is(err, inventorydomain.ErrGoodsIssueNoteNotFound) {
			return pdf.InvoiceDocument{}, err
		}
		if note != nil {
			line.NoteCode = note.Code
			line.DeliveredAt = note.DeliveredAt.Format(dateLayout)
		}
		doc.Lines = append(doc.Lines, line)
	}
	return doc, nil
}
