package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pevans/auctionscan/logger"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvSpreadsheetID      = "AUCTIONSCAN_SPREADSHEET_ID"
	EnvSheetsBackend      = "AUCTIONSCAN_SHEETS_BACKEND"
	EnvDriver             = "AUCTIONSCAN_DRIVER"
	EnvCredentialsFile    = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvCredentialsJSON    = "GOOGLE_CREDENTIALS_JSON"
	EnvCredentialsJSONB64 = "GOOGLE_CREDENTIALS_JSON_B64"
	EnvHeadless           = "HEADLESS"
	EnvFeeRate            = "FEE_RATE"
	EnvTaxRate            = "TAX_RATE"
	EnvMinCarat           = "MIN_CT"
	EnvLogLevel           = "LOG_LEVEL"
)

// DefaultPath returns ~/.auctionscan/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".auctionscan", "config.yaml"), nil
}

// Load reads the configuration file at path over Default() and applies the
// environment overrides. An empty path means DefaultPath. A missing file is
// not an error. The result is not validated.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads the YAML file at path over Default(). Returns the defaults
// if the file doesn't exist.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides settings from the environment, looked up through
// lookup (os.LookupEnv outside tests).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvSpreadsheetID); ok {
		c.Sheets.SpreadsheetID = v
	}
	if v, ok := get(EnvSheetsBackend); ok {
		c.Sheets.Backend = strings.ToLower(v)
	}
	if v, ok := get(EnvDriver); ok {
		c.Browser.Driver = strings.ToLower(v)
	}
	if v, ok := get(EnvCredentialsFile); ok {
		c.Sheets.CredentialsFile = v
	}
	if v, ok := get(EnvCredentialsJSON); ok {
		c.Sheets.CredentialsJSON = []byte(v)
	} else if v, ok := get(EnvCredentialsJSONB64); ok {
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", EnvCredentialsJSONB64, err)
		}
		c.Sheets.CredentialsJSON = data
	}

	if v, ok := get(EnvHeadless); ok {
		headless, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.Browser.Rod.Headless = headless
	}

	for key, dst := range map[string]*decimal.Decimal{
		EnvFeeRate:  &c.Carat.FeeRate,
		EnvTaxRate:  &c.Carat.TaxRate,
		EnvMinCarat: &c.Carat.MinCarat,
	} {
		v, ok := get(key)
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = d
	}

	if v, ok := get(EnvLogLevel); ok {
		c.Logger.Level = logger.Level(strings.ToLower(v))
	}

	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}
