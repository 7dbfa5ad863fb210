package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MeteringConfig holds the hot-reloadable thresholds used by metering and analytics.
// Percentages are expressed on a 0-100 scale.
type MeteringConfig struct {
	NearLimitPercent             float64 `mapstructure:"nearLimitPercent"`
	OverLimitPercent             float64 `mapstructure:"overLimitPercent"`
	WarningPercent               float64 `mapstructure:"warningPercent"`
	CriticalPercent              float64 `mapstructure:"criticalPercent"`
	UpgradeRecommendationPercent float64 `mapstructure:"upgradeRecommendationPercent"`
	TopEvents                    int     `mapstructure:"topEvents"`
	DefaultTrendMonths           int     `mapstructure:"defaultTrendMonths"`
	MaxTrendMonths               int     `mapstructure:"maxTrendMonths"`
}

func DefaultMeteringConfig() MeteringConfig {
	return MeteringConfig{
		NearLimitPercent:             80,
		OverLimitPercent:             100,
		WarningPercent:               75,
		CriticalPercent:              90,
		UpgradeRecommendationPercent: 80,
		TopEvents:                    5,
		DefaultTrendMonths:           3,
		MaxTrendMonths:               24,
	}
}

type MeteringConfigHolder struct {
	current atomic.Value // holds MeteringConfig
}

// NewStaticMeteringConfigHolder returns a holder that never reloads.
func NewStaticMeteringConfigHolder(cfg MeteringConfig) *MeteringConfigHolder {
	holder := &MeteringConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewMeteringConfigHolder reads metering.yml from the configured paths and watches it for changes.
// A missing file falls back to defaults.
func NewMeteringConfigHolder(cfg Config, log *zap.Logger) (*MeteringConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.metering")

	v := viper.New()
	v.SetConfigName("metering")
	v.SetConfigType("yml")
	for _, path := range cfg.MeteringConfigPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("CREDITMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMeteringConfig()
	v.SetDefault("metering.nearLimitPercent", defaults.NearLimitPercent)
	v.SetDefault("metering.overLimitPercent", defaults.OverLimitPercent)
	v.SetDefault("metering.warningPercent", defaults.WarningPercent)
	v.SetDefault("metering.criticalPercent", defaults.CriticalPercent)
	v.SetDefault("metering.upgradeRecommendationPercent", defaults.UpgradeRecommendationPercent)
	v.SetDefault("metering.topEvents", defaults.TopEvents)
	v.SetDefault("metering.defaultTrendMonths", defaults.DefaultTrendMonths)
	v.SetDefault("metering.maxTrendMonths", defaults.MaxTrendMonths)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	loaded, err := decodeMeteringConfig(v)
	if err != nil {
		return nil, err
	}
	if err := ValidateMeteringConfig(loaded); err != nil {
		return nil, err
	}

	holder := NewStaticMeteringConfigHolder(loaded)
	if !fileFound {
		log.Info("metering config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeMeteringConfig(v)
		if err != nil {
			log.Warn("metering config reload failed", zap.Error(err))
			return
		}
		if err := ValidateMeteringConfig(updated); err != nil {
			log.Warn("invalid metering config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("metering config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodeMeteringConfig unmarshals the whole tree so per-key defaults fill gaps in a partial file.
func decodeMeteringConfig(v *viper.Viper) (MeteringConfig, error) {
	var wrapper struct {
		Metering MeteringConfig `mapstructure:"metering"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return MeteringConfig{}, err
	}
	return wrapper.Metering, nil
}

func (h *MeteringConfigHolder) Get() MeteringConfig {
	if h == nil {
		return DefaultMeteringConfig()
	}
	cfg, ok := h.current.Load().(MeteringConfig)
	if !ok {
		return DefaultMeteringConfig()
	}
	return cfg
}

func ValidateMeteringConfig(cfg MeteringConfig) error {
	if cfg.NearLimitPercent <= 0 {
		return errors.New("metering.nearLimitPercent must be positive")
	}
	if cfg.OverLimitPercent < cfg.NearLimitPercent {
		return errors.New("metering.overLimitPercent must be >= nearLimitPercent")
	}
	if cfg.WarningPercent <= 0 || cfg.CriticalPercent < cfg.WarningPercent {
		return errors.New("metering.criticalPercent must be >= warningPercent > 0")
	}
	if cfg.UpgradeRecommendationPercent <= 0 {
		return errors.New("metering.upgradeRecommendationPercent must be positive")
	}
	if cfg.TopEvents <= 0 {
		return errors.New("metering.topEvents must be positive")
	}
	if cfg.MaxTrendMonths <= 0 || cfg.DefaultTrendMonths <= 0 || cfg.DefaultTrendMonths > cfg.MaxTrendMonths {
		return errors.New("metering.defaultTrendMonths must be within 1..maxTrendMonths")
	}
	return nil
}
