package providers

import (
	"github.com/smallbiznis/referralhub/internal/providers/blob"
	"github.com/smallbiznis/referralhub/internal/providers/email"
	"github.com/smallbiznis/referralhub/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	blob.Module,
	email.Module,
	pdf.Module,
)
