package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(func() Provider { return &PDFProvider{} }),
)

type Provider interface {
	GenerateRemittance(ctx context.Context, data RemittanceData) ([]byte, error)
}

type PDFProvider struct{}
