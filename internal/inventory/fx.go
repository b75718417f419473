package inventory

import (
	"github.com/smallbiznis/pharmasettle/internal/inventory/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.provider",
	fx.Provide(repository.Provide),
)
