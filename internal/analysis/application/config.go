package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tariff-advisor/internal/invoice/extraction"
	"tariff-advisor/internal/ptbr"
)

// Tuning holds the optimisation and billing knobs of an analysis.
type Tuning struct {
	LowerKW            float64 `yaml:"lower_kw"`
	UpperKW            float64 `yaml:"upper_kw"`
	BlueSeedPeakKW     float64 `yaml:"blue_seed_peak_kw"`
	BlueSeedOffPeakKW  float64 `yaml:"blue_seed_off_peak_kw"`
	OverageTolerance   float64 `yaml:"overage_tolerance"`
	OverageMultiplier  float64 `yaml:"overage_multiplier"`
	AdjustmentDemandKW float64 `yaml:"adjustment_demand_kw"`
	UpdatedPeriod      string  `yaml:"updated_period"`
}

// Config defines analysis configuration.
type Config struct {
	Defaults           Tuning            `yaml:"defaults"`
	Distributors       map[string]Tuning `yaml:"distributors"`
	DefaultDistributor string            `yaml:"default_distributor"`
	RateDetail         string            `yaml:"rate_detail"`
	ICMSInDenominator  bool              `yaml:"icms_in_denominator"`
	ContractedPolicy   string            `yaml:"contracted_policy"`
	Concurrency        int               `yaml:"concurrency"`
	ArchiveRoot        string            `yaml:"archive_root"`
	RateTablePath      string            `yaml:"rate_table_path"`
	RateTableSheet     string            `yaml:"rate_table_sheet"`
	Curves             bool              `yaml:"curves"`
}

// LoadConfig loads config from the YAML file at ANALYSIS_CONFIG, with
// environment fallbacks for anything the file leaves empty.
func LoadConfig() (Config, error) {
	cfg := Config{
		Defaults: Tuning{
			LowerKW:            getenvFloatDefault("ANALYSIS_LOWER_KW", 30),
			UpperKW:            getenvFloatDefault("ANALYSIS_UPPER_KW", 1000),
			BlueSeedPeakKW:     100,
			BlueSeedOffPeakKW:  100,
			OverageTolerance:   getenvFloatDefault("ANALYSIS_OVERAGE_TOLERANCE", 1.05),
			OverageMultiplier:  getenvFloatDefault("ANALYSIS_OVERAGE_MULTIPLIER", 2),
			AdjustmentDemandKW: getenvFloatDefault("ANALYSIS_ADJUSTMENT_DEMAND_KW", 570),
			UpdatedPeriod:      getenvDefault("ANALYSIS_UPDATED_PERIOD", "DEZ-2024"),
		},
		ICMSInDenominator: getenvBoolDefault("ANALYSIS_ICMS_IN_DENOMINATOR", false),
		RateDetail:        getenvDefault("ANALYSIS_RATE_DETAIL", "Não se aplica"),
		Concurrency:       int(getenvFloatDefault("ANALYSIS_CONCURRENCY", 4)),
		ArchiveRoot:       os.Getenv("INVOICE_ARCHIVE_ROOT"),
		RateTablePath:     os.Getenv("RATE_TABLE_PATH"),
		Curves:            getenvBoolDefault("ANALYSIS_CURVES", false),
	}

	if path := os.Getenv("ANALYSIS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.DefaultDistributor == "" {
		cfg.DefaultDistributor = getenvDefault("ANALYSIS_DEFAULT_DISTRIBUTOR", "EDP ES")
	}
	if cfg.ContractedPolicy == "" {
		cfg.ContractedPolicy = getenvDefault("EXTRACTION_CONTRACTED_POLICY", string(extraction.GenericAsOffPeak))
	}
	if cfg.RateTableSheet == "" {
		cfg.RateTableSheet = os.Getenv("RATE_TABLE_SHEET")
	}
	return cfg, cfg.Validate()
}

// Validate checks the defaults and every distributor override.
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return errors.New("analysis: concurrency must be positive")
	}
	if _, err := extraction.ParseContractedPolicy(c.ContractedPolicy); err != nil {
		return err
	}
	if err := c.Defaults.validate(); err != nil {
		return err
	}
	for name := range c.Distributors {
		if err := c.TuningFor(name).validate(); err != nil {
			return fmt.Errorf("analysis: distributor %s: %w", name, err)
		}
	}
	return nil
}

func (t Tuning) validate() error {
	if !(t.LowerKW > 0 && t.LowerKW < t.UpperKW) {
		return fmt.Errorf("analysis: invalid demand bounds [%v, %v]", t.LowerKW, t.UpperKW)
	}
	if t.OverageTolerance < 1 {
		return fmt.Errorf("analysis: overage tolerance %v below 1", t.OverageTolerance)
	}
	if _, err := ptbr.ParsePeriod(t.UpdatedPeriod); err != nil {
		return fmt.Errorf("analysis: updated period: %w", err)
	}
	return nil
}

// TuningFor returns the tuning of a distributor, falling back to defaults.
func (c Config) TuningFor(distributor string) Tuning {
	for name, override := range c.Distributors {
		if strings.EqualFold(ptbr.Fold(name), ptbr.Fold(distributor)) {
			return mergeTuning(c.Defaults, override)
		}
	}
	return c.Defaults
}

func mergeTuning(base, override Tuning) Tuning {
	if override.LowerKW != 0 {
		base.LowerKW = override.LowerKW
	}
	if override.UpperKW != 0 {
		base.UpperKW = override.UpperKW
	}
	if override.BlueSeedPeakKW != 0 {
		base.BlueSeedPeakKW = override.BlueSeedPeakKW
	}
	if override.BlueSeedOffPeakKW != 0 {
		base.BlueSeedOffPeakKW = override.BlueSeedOffPeakKW
	}
	if override.OverageTolerance != 0 {
		base.OverageTolerance = override.OverageTolerance
	}
	if override.OverageMultiplier != 0 {
		base.OverageMultiplier = override.OverageMultiplier
	}
	if override.AdjustmentDemandKW != 0 {
		base.AdjustmentDemandKW = override.AdjustmentDemandKW
	}
	if override.UpdatedPeriod != "" {
		base.UpdatedPeriod = override.UpdatedPeriod
	}
	return base
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
