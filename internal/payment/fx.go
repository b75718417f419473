package payment

import (
	"github.com/smallbiznis/pharmasettle/internal/config"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/smallbiznis/pharmasettle/internal/payment/gateway/vnpay"
	"github.com/smallbiznis/pharmasettle/internal/payment/repository"
	"github.com/smallbiznis/pharmasettle/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewGateway),
	fx.Provide(service.NewService),
)

// NewGateway returns nil when no merchant credentials are configured, which
// disables online payments without failing startup.
func NewGateway(cfg config.Config, log *zap.Logger) paymentdomain.Gateway {
	adapter, err := vnpay.New(cfg.Gateway)
	if err != nil {
		log.Warn("payment gateway disabled", zap.Error(err))
		return nil
	}
	return adapter
}
