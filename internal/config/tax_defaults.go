package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TaxDefaults seeds the tax configuration of organizations that have none.
type TaxDefaults struct {
	GSTSlabs      []string         `mapstructure:"gstSlabs"`
	ReverseCharge bool             `mapstructure:"reverseCharge"`
	RoundingMode  string           `mapstructure:"roundingMode"`
	TDSRules      []TDSRuleDefault `mapstructure:"tdsRules"`
}

type TDSRuleDefault struct {
	Nature    string `mapstructure:"nature"`
	Section   string `mapstructure:"section"`
	Rate      string `mapstructure:"rate"`
	Threshold string `mapstructure:"threshold"`
}

func DefaultTaxDefaults() TaxDefaults {
	return TaxDefaults{
		GSTSlabs:     []string{"0", "5", "12", "18", "28"},
		RoundingMode: "half_up",
		TDSRules: []TDSRuleDefault{
			{Nature: "CONTRACTOR", Section: "194C", Rate: "1", Threshold: "30000"},
			{Nature: "CONTRACTOR_COMPANY", Section: "194C", Rate: "2", Threshold: "30000"},
			{Nature: "PROFESSIONAL", Section: "194J", Rate: "10", Threshold: "30000"},
			{Nature: "RENT", Section: "194I", Rate: "10", Threshold: "240000"},
			{Nature: "COMMISSION", Section: "194H", Rate: "5", Threshold: "15000"},
			{Nature: "INTEREST", Section: "194A", Rate: "10", Threshold: "40000"},
		},
	}
}

type TaxDefaultsHolder struct {
	current atomic.Value // holds TaxDefaults
}

// NewStaticTaxDefaultsHolder wraps fixed defaults without watching any file.
func NewStaticTaxDefaultsHolder(defaults TaxDefaults) (*TaxDefaultsHolder, error) {
	if err := validateTaxDefaults(defaults); err != nil {
		return nil, err
	}
	holder := &TaxDefaultsHolder{}
	holder.current.Store(defaults)
	return holder, nil
}

func NewTaxDefaultsHolder(log *zap.Logger) (*TaxDefaultsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.tax_defaults")

	v := viper.New()

	v.SetConfigName("tax_defaults")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/bizbooks/config")
	v.AddConfigPath("/etc/bizbooks")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BIZBOOKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultTaxDefaults()
		v.SetDefault("tax.gstSlabs", defaults.GSTSlabs)
		v.SetDefault("tax.reverseCharge", defaults.ReverseCharge)
		v.SetDefault("tax.roundingMode", defaults.RoundingMode)
		v.SetDefault("tax.tdsRules", defaults.TDSRules)
	}

	var cfg TaxDefaults
	if err := v.UnmarshalKey("tax", &cfg); err != nil {
		return nil, err
	}
	if err := validateTaxDefaults(cfg); err != nil {
		return nil, err
	}

	holder := &TaxDefaultsHolder{}
	holder.current.Store(cfg)

	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated TaxDefaults
			if err := v.UnmarshalKey("tax", &updated); err != nil {
				log.Warn("tax defaults reload failed", zap.Error(err))
				return
			}
			if err := validateTaxDefaults(updated); err != nil {
				log.Warn("invalid tax defaults ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("tax defaults reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *TaxDefaultsHolder) Get() TaxDefaults {
	return h.current.Load().(TaxDefaults)
}

func validateTaxDefaults(cfg TaxDefaults) error {
	if len(cfg.GSTSlabs) == 0 {
		return errors.New("tax.gstSlabs cannot be empty")
	}
	for _, raw := range cfg.GSTSlabs {
		if err := nonNegativeDecimal("tax.gstSlabs", raw); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(cfg.TDSRules))
	for _, rule := range cfg.TDSRules {
		nature := strings.ToUpper(strings.TrimSpace(rule.Nature))
		if nature == "" {
			return errors.New("tax.tdsRules nature cannot be empty")
		}
		if _, dup := seen[nature]; dup {
			return fmt.Errorf("tax.tdsRules duplicate nature %s", nature)
		}
		seen[nature] = struct{}{}
		if err := nonNegativeDecimal("tax.tdsRules.rate", rule.Rate); err != nil {
			return err
		}
		if strings.TrimSpace(rule.Threshold) == "" {
			continue
		}
		if err := nonNegativeDecimal("tax.tdsRules.threshold", rule.Threshold); err != nil {
			return err
		}
	}
	return nil
}

func nonNegativeDecimal(field, raw string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: invalid number %q", field, raw)
	}
	if d.IsNegative() {
		return fmt.Errorf("%s: negative value %q", field, raw)
	}
	return nil
}
