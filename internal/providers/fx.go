package providers

import (
	"github.com/smallbiznis/pharmasettle/internal/providers/email"
	"github.com/smallbiznis/pharmasettle/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
