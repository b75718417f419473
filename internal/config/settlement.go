package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// SettlementConfig is the business policy that operators tune without a redeploy.
type SettlementConfig struct {
	DepositFraction string `mapstructure:"depositFraction"`
	OrderExpiryDays int    `mapstructure:"orderExpiryDays"`
}

func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		DepositFraction: "0.3",
		OrderExpiryDays: 7,
	}
}

// Fraction returns the parsed deposit fraction. The value is validated on load.
func (c SettlementConfig) Fraction() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.DepositFraction))
	if err != nil {
		return decimal.Zero
	}
	return d
}

type SettlementConfigHolder struct {
	current atomic.Value // holds SettlementConfig
}

// NewStaticSettlementConfig returns a holder that never reloads.
func NewStaticSettlementConfig(cfg SettlementConfig) *SettlementConfigHolder {
	holder := &SettlementConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSettlementConfigHolder() (*SettlementConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("settlement")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/pharmasettle")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PHARMASETTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettlementConfig()
	v.SetDefault("settlement.depositFraction", defaults.DepositFraction)
	v.SetDefault("settlement.orderExpiryDays", defaults.OrderExpiryDays)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg SettlementConfig
	if err := v.UnmarshalKey("settlement", &cfg); err != nil {
		return nil, err
	}
	if err := validateSettlementConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSettlementConfig(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SettlementConfig
		if err := v.UnmarshalKey("settlement", &updated); err != nil {
			log.Printf("[settlement-config] reload failed: %v", err)
			return
		}
		if err := validateSettlementConfig(updated); err != nil {
			log.Printf("[settlement-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[settlement-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SettlementConfigHolder) Get() SettlementConfig {
	return h.current.Load().(SettlementConfig)
}

// Store validates and swaps in cfg.
func (h *SettlementConfigHolder) Store(cfg SettlementConfig) error {
	if err := validateSettlementConfig(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

func validateSettlementConfig(cfg SettlementConfig) error {
	fraction, err := decimal.NewFromString(strings.TrimSpace(cfg.DepositFraction))
	if err != nil {
		return errors.New("settlement.depositFraction must be a decimal number")
	}
	if !fraction.IsPositive() || fraction.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("settlement.depositFraction must be within (0, 1]")
	}
	if cfg.OrderExpiryDays <= 0 {
		return errors.New("settlement.orderExpiryDays must be positive")
	}
	return nil
}
