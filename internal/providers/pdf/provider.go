package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// Provider renders business documents to PDF bytes.
type Provider interface {
	RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	return nil, nil
}
