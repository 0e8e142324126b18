// Package config loads the site settings of the transfer service.
//
// Settings start from application.DefaultSettings, are overlaid by an
// optional YAML file and finally by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/transfer-service/internal/application"
)

const day = 24 * time.Hour

// Environment variables read by Load
const (
	EnvSiteConfigPath    = "SITE_CONFIG_PATH"
	EnvSandboxMode       = "SANDBOX_MODE"
	EnvSiteDomain        = "SITE_DOMAIN"
	EnvSiteCurrency      = "SITE_CURRENCY"
	EnvRetailLiftPercent = "RETAIL_LIFT_PERCENT"
	EnvStalenessDays     = "STALENESS_DAYS"
	EnvTimeoutDays       = "TIMEOUT_DAYS"
)

// SiteFile is the layout of the site YAML file
type SiteFile struct {
	Domain             string           `yaml:"domain"`
	Currency           string           `yaml:"currency"`
	RetailLiftPercent  *string          `yaml:"retail_lift_percent"`
	CurrencyPrecisions map[string]int32 `yaml:"currency_precisions"`
	StalenessDays      *int             `yaml:"staleness_days"`
	TimeoutDays        *int             `yaml:"timeout_days"`
	Sandbox            *bool            `yaml:"sandbox"`
}

// Load resolves the site settings. A missing SITE_CONFIG_PATH means defaults
// plus env overrides.
func Load() (application.Settings, error) {
	settings := application.DefaultSettings()

	if path := os.Getenv(EnvSiteConfigPath); path != "" {
		file, err := os.Open(path)
		if err != nil {
			return settings, fmt.Errorf("failed to open site config: %w", err)
		}
		defer file.Close()

		var site SiteFile
		if err := yaml.NewDecoder(file).Decode(&site); err != nil {
			return settings, fmt.Errorf("invalid site config %s: %w", path, err)
		}
		if err := site.apply(&settings); err != nil {
			return settings, err
		}
	}

	if err := applyEnv(&settings, os.LookupEnv); err != nil {
		return settings, err
	}
	return settings, validate(settings)
}

// Parse decodes a site file from raw YAML and applies it over the defaults
func Parse(data []byte) (application.Settings, error) {
	settings := application.DefaultSettings()

	var site SiteFile
	if err := yaml.Unmarshal(data, &site); err != nil {
		return settings, fmt.Errorf("invalid site config: %w", err)
	}
	if err := site.apply(&settings); err != nil {
		return settings, err
	}
	return settings, validate(settings)
}

func (f *SiteFile) apply(s *application.Settings) error {
	if f.Domain != "" {
		s.Domain = f.Domain
	}
	if f.Currency != "" {
		s.Currency = strings.ToUpper(f.Currency)
	}
	if f.RetailLiftPercent != nil {
		lift, err := decimal.NewFromString(*f.RetailLiftPercent)
		if err != nil {
			return fmt.Errorf("invalid retail_lift_percent: %w", err)
		}
		s.RetailLiftPercent = lift
	}
	for currency, precision := range f.CurrencyPrecisions {
		if s.CurrencyPrecisions == nil {
			s.CurrencyPrecisions = make(map[string]int32)
		}
		s.CurrencyPrecisions[strings.ToUpper(currency)] = precision
	}
	if f.StalenessDays != nil {
		s.StalenessWindow = time.Duration(*f.StalenessDays) * day
	}
	if f.TimeoutDays != nil {
		s.TimeoutWindow = time.Duration(*f.TimeoutDays) * day
	}
	if f.Sandbox != nil {
		s.Sandbox = *f.Sandbox
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(s *application.Settings, lookup lookupFunc) error {
	if v, ok := lookup(EnvSiteDomain); ok && v != "" {
		s.Domain = v
	}
	if v, ok := lookup(EnvSiteCurrency); ok && v != "" {
		s.Currency = strings.ToUpper(v)
	}
	if v, ok := lookup(EnvRetailLiftPercent); ok && v != "" {
		lift, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRetailLiftPercent, err)
		}
		s.RetailLiftPercent = lift
	}
	if v, ok := lookup(EnvStalenessDays); ok && v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvStalenessDays, err)
		}
		s.StalenessWindow = time.Duration(days) * day
	}
	if v, ok := lookup(EnvTimeoutDays); ok && v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTimeoutDays, err)
		}
		s.TimeoutWindow = time.Duration(days) * day
	}
	if v, ok := lookup(EnvSandboxMode); ok && v != "" {
		sandbox, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSandboxMode, err)
		}
		s.Sandbox = sandbox
	}
	return nil
}

func validate(s application.Settings) error {
	var errs []error
	if len(s.Currency) != 3 {
		errs = append(errs, fmt.Errorf("currency must be a 3-letter code, got %q", s.Currency))
	}
	if s.RetailLiftPercent.IsNegative() {
		errs = append(errs, errors.New("retail lift percent must not be negative"))
	}
	if s.StalenessWindow < 0 {
		errs = append(errs, errors.New("staleness window must not be negative"))
	}
	if s.TimeoutWindow <= 0 {
		errs = append(errs, errors.New("timeout window must be positive"))
	}
	return errors.Join(errs...)
}
