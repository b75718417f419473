package customer

import (
	"github.com/smallbiznis/pharmasettle/internal/customer/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.directory",
	fx.Provide(repository.Provide),
	fx.Provide(repository.NewDirectory),
)
