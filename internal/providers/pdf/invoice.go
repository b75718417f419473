package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyInvoice = errors.New("invoice_document_empty")

// InvoiceDocument is a pre-formatted invoice. All amounts are display strings.
type InvoiceDocument struct {
	SellerName    string
	InvoiceCode   string
	OrderCode     string
	IssuedAt      string
	PaymentStatus string

	CustomerName  string
	CustomerEmail string
	CustomerPhone string

	Lines []InvoiceLine

	TotalAmount  string
	TotalDeposit string
	TotalRemain  string
	TotalPaid    string
	AmountDue    string
}

// InvoiceLine is one delivery on the invoice.
type InvoiceLine struct {
	NoteCode         string
	DeliveredAt      string
	GoodsAmount      string
	AllocatedDeposit string
	PaidRemain       string
	Balance          string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	if doc.InvoiceCode == "" || len(doc.Lines) == 0 {
		return nil, ErrEmptyInvoice
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, doc.SellerName, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "INVOICE", props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+doc.InvoiceCode, props.Text{Top: 0}),
			text.New("Sales order: "+doc.OrderCode, props.Text{Top: 4}),
			text.New("Issued at: "+doc.IssuedAt, props.Text{Top: 8}),
			text.New("Payment status: "+doc.PaymentStatus, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(doc.CustomerName, props.Text{Top: 4, Align: align.Right}),
			text.New(doc.CustomerEmail, props.Text{Top: 8, Align: align.Right}),
			text.New(doc.CustomerPhone, props.Text{Top: 12, Align: align.Right}),
		),
	)

	header := props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right}
	m.AddRow(8,
		text.NewCol(2, "Delivery", props.Text{Style: fontstyle.Bold, Size: 8}),
		text.NewCol(2, "Delivered", props.Text{Style: fontstyle.Bold, Size: 8}),
		text.NewCol(2, "Goods", header),
		text.NewCol(2, "Deposit", header),
		text.NewCol(2, "Paid", header),
		text.NewCol(2, "Balance", header),
	)
	m.AddRow(2, line.NewCol(12))

	cell := props.Text{Size: 8, Align: align.Right}
	for _, l := range doc.Lines {
		m.AddRow(8,
			text.NewCol(2, l.NoteCode, props.Text{Size: 8}),
			text.NewCol(2, l.DeliveredAt, props.Text{Size: 8}),
			text.NewCol(2, l.GoodsAmount, cell),
			text.NewCol(2, l.AllocatedDeposit, cell),
			text.NewCol(2, l.PaidRemain, cell),
			text.NewCol(2, l.Balance, cell),
		)
	}
	m.AddRow(2, line.NewCol(12))

	totals := []struct {
		label string
		value string
	}{
		{"Total", doc.TotalAmount},
		{"Deposit", doc.TotalDeposit},
		{"Remaining", doc.TotalRemain},
		{"Paid", doc.TotalPaid},
	}
	for _, t := range totals {
		m.AddRow(7,
			col.New(8),
			text.NewCol(2, t.label, props.Text{Size: 9}),
			text.NewCol(2, t.value, props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, doc.AmountDue, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return out.GetBytes(), nil
}
