// =============================================================================
// Fradma Dashboard - Configuration Module
// =============================================================================
//
// This module loads the application configuration. Everything that encodes a
// business decision lives here as data rather than code:
//   - Header alias lists per canonical field (in priority order)
//   - The year -> exchange-rate table and the fallback rate
//   - Null-sentinel tokens for amount cells
//   - Reconciliation profiles (sales, invoice items, receivables)
//   - Text rules applied to canonical text fields
//
// LOADING ORDER:
//   1. Embedded defaults.yaml
//   2. The user config file, decoded on top of the defaults
//   3. FRADMA_* environment variables (a .env file is loaded by the CLI)
//   4. Zero-value defaults and validation
//
// =============================================================================

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Storage drivers understood by the storage package.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Conversion policies understood by the currency package.
const (
	PolicyFallback = "fallback"
	PolicyStrict   = "strict"
)

// DefaultProfile is used when the caller does not name a profile.
const DefaultProfile = "sales"

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// Currency controls USD conversion of local-currency amounts.
	Currency CurrencyConfig `yaml:"currency"`

	// NullSentinels are amount tokens that mean "no value" (case-insensitive).
	NullSentinels []string `yaml:"null_sentinels"`

	// Aliases maps a canonical field name to its accepted header spellings.
	// Order matters: the first alias present in a sheet wins.
	Aliases map[string][]string `yaml:"aliases"`

	// LocalAmountAliases lists amount aliases denominated in local currency.
	LocalAmountAliases []string `yaml:"local_amount_aliases"`

	// Profiles are named reconciliation presets. A profile given in the user
	// file replaces the built-in profile of the same name as a whole.
	Profiles map[string]Profile `yaml:"profiles"`

	// Input controls how spreadsheets are located and read.
	Input InputConfig `yaml:"input"`

	// TextRules are cleanup actions applied to canonical text fields.
	TextRules []TextRule `yaml:"text_rules"`

	// Storage selects the deduplicating persistence sink.
	Storage StorageConfig `yaml:"storage"`

	// Logging controls the slog handler built by the CLI.
	Logging LoggingConfig `yaml:"logging"`

	// Output controls where exports and logs are written.
	Output OutputConfig `yaml:"output"`

	// MetricsFile, when set, receives a Prometheus textfile after each run.
	MetricsFile string `yaml:"metrics_file"`
}

// CurrencyConfig holds the exchange-rate data.
type CurrencyConfig struct {
	// Policy is "fallback" (a missing rate resolves to FallbackRate) or
	// "strict" (a missing rate yields a null amount).
	Policy string `yaml:"policy"`

	// FallbackRate is applied when neither the row nor the table has a rate.
	FallbackRate float64 `yaml:"fallback_rate"`

	// RateTable maps a calendar year to local units per USD.
	RateTable map[int]float64 `yaml:"rate_table"`

	// USDTokens are currency codes treated as already USD-denominated.
	USDTokens []string `yaml:"usd_tokens"`

	// LocalCurrency labels amounts that came from a local-currency column
	// without a currency column of their own.
	LocalCurrency string `yaml:"local_currency"`

	// ConvertWithoutCurrencyColumn converts local-currency amounts even when
	// the sheet has no currency column. Off by default: such amounts pass
	// through and a warning is recorded.
	ConvertWithoutCurrencyColumn bool `yaml:"convert_without_currency_column"`
}

// Profile is a named reconciliation preset.
type Profile struct {
	// AllowMissingDate accepts sheets with neither a date nor a year
	// column. Without it such a sheet fails reconciliation.
	AllowMissingDate bool `yaml:"allow_missing_date"`

	// Required lists canonical fields whose column must be present.
	Required []string `yaml:"required"`

	// AmountAliases overrides the amount alias list for this profile.
	AmountAliases []string `yaml:"amount_aliases"`

	// Sheets are preferred workbook sheet names. When several are present
	// they are read and concatenated.
	Sheets []string `yaml:"sheets"`

	// SheetIndex is a 1-based sheet position used when no named sheet matches.
	// Zero selects the sheet whose header row best matches the alias table.
	SheetIndex int `yaml:"sheet_index"`
}

// InputConfig controls spreadsheet reading.
type InputConfig struct {
	// SheetName forces one sheet, overriding the profile's sheet list.
	SheetName string `yaml:"sheet_name"`

	// PreambleMarkers are substrings that identify a vendor-software
	// report preamble above the real header row.
	PreambleMarkers []string `yaml:"preamble_markers"`

	// PreambleSkipRows is the fixed number of rows skipped when a marker is
	// found. Zero means "search for the header row instead".
	PreambleSkipRows int `yaml:"preamble_skip_rows"`

	// HeaderScanRows bounds the header-row search.
	HeaderScanRows int `yaml:"header_scan_rows"`

	// DateLayouts are the textual date layouts tried in order.
	DateLayouts []string `yaml:"date_layouts"`

	// CSV holds delimited-text settings.
	CSV CSVSettings `yaml:"csv"`
}

// CSVSettings contains settings for parsing delimited text.
type CSVSettings struct {
	// Delimiter is the field separator. "auto" sniffs it from the header line.
	// Also accepts "tab", "pipe" and "semicolon".
	Delimiter string `yaml:"delimiter"`

	// HeaderRows is the number of header rows to merge into one.
	HeaderRows int `yaml:"header_rows"`

	// Encoding is "auto", "utf-8", "iso-8859-1" or "windows-1252".
	// "auto" keeps valid UTF-8 and decodes anything else as Windows-1252.
	Encoding string `yaml:"encoding"`
}

// =============================================================================
// TEXT RULE STRUCTURE
// =============================================================================

// TextRule declares cleanup actions for one canonical text field.
type TextRule struct {
	// Field is the canonical field name, e.g. "moneda" or "cliente".
	Field string `yaml:"field"`

	// Actions are applied in order.
	Actions []TextAction `yaml:"actions"`
}

// TextAction is a single cleanup step.
type TextAction struct {
	// Type is one of:
	//   - "trim"                : Remove leading and trailing whitespace
	//   - "uppercase"           : Convert to uppercase
	//   - "lowercase"           : Convert to lowercase
	//   - "collapse_whitespace" : Collapse internal whitespace runs to one space
	//   - "replace"             : Replace Find with Value
	//   - "lookup"              : Replace the whole value using LookupTable
	//   - "default"             : Use Value when the cell is empty
	Type string `yaml:"type"`

	// Value is the parameter for "replace" and "default".
	Value string `yaml:"value,omitempty"`

	// Find is the substring replaced by "replace".
	Find string `yaml:"find,omitempty"`

	// LookupTable maps input values to output values for "lookup".
	// Keys match case-insensitively after trimming.
	LookupTable map[string]string `yaml:"lookup_table,omitempty"`
}

// =============================================================================
// STORAGE, LOGGING AND OUTPUT
// =============================================================================

// StorageConfig selects the persistence sink.
type StorageConfig struct {
	// Driver is "sqlite", "postgres" or "none".
	Driver string `yaml:"driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresDSN is the connection string used by the postgres driver.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// OutputConfig controls exported files.
type OutputConfig struct {
	// Directory receives exports, summary logs and issue logs.
	Directory string `yaml:"directory"`

	// FilePattern names exported files. Placeholders: {source}, {timestamp},
	// {date}, {uuid}, plus any caller-supplied key.
	FilePattern string `yaml:"file_pattern"`

	// ArchiveDirectory, when set, receives input files after a successful ingest.
	ArchiveDirectory string `yaml:"archive_directory"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Default returns the built-in configuration with environment overrides applied.
func Default() (*MainConfig, error) {
	return load(nil)
}

// LoadMainConfig loads the configuration file at configPath on top of the
// built-in defaults.
//
// PARAMETERS:
//   - configPath: The path to the YAML configuration file.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read, parsed or validated.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(data)
}

// Parse decodes a YAML document on top of the built-in defaults.
func Parse(data []byte) (*MainConfig, error) {
	return load(data)
}

func load(user []byte) (*MainConfig, error) {
	var cfg MainConfig
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse built-in defaults: %w", err)
	}

	if len(user) > 0 {
		if err := yaml.Unmarshal(user, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	applyMainConfigDefaults(&cfg)

	if err := validateMainConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets deployment-specific values come from the environment.
func applyEnvOverrides(cfg *MainConfig) error {
	if v := os.Getenv("FRADMA_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("FRADMA_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("FRADMA_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("FRADMA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FRADMA_FALLBACK_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("FRADMA_FALLBACK_RATE: %w", err)
		}
		cfg.Currency.FallbackRate = rate
	}
	return nil
}

// applyMainConfigDefaults sets default values for any unset options.
func applyMainConfigDefaults(cfg *MainConfig) {
	if cfg.Currency.Policy == "" {
		cfg.Currency.Policy = PolicyFallback
	}
	if cfg.Input.HeaderScanRows == 0 {
		cfg.Input.HeaderScanRows = 20
	}
	if cfg.Input.CSV.HeaderRows == 0 {
		cfg.Input.CSV.HeaderRows = 1
	}
	if cfg.Input.CSV.Delimiter == "" {
		cfg.Input.CSV.Delimiter = "auto"
	}
	if cfg.Input.CSV.Encoding == "" {
		cfg.Input.CSV.Encoding = "auto"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverNone
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "./output"
	}
	if cfg.Output.FilePattern == "" {
		cfg.Output.FilePattern = "{source}_{timestamp}"
	}
}

// validateMainConfig rejects configurations that would produce wrong totals
// rather than failing loudly.
func validateMainConfig(cfg *MainConfig) error {
	var errs []error

	if cfg.Currency.FallbackRate <= 0 {
		errs = append(errs, fmt.Errorf("currency.fallback_rate must be positive, got %v", cfg.Currency.FallbackRate))
	}
	for year, rate := range cfg.Currency.RateTable {
		if rate <= 0 {
			errs = append(errs, fmt.Errorf("currency.rate_table[%d] must be positive, got %v", year, rate))
		}
	}
	switch cfg.Currency.Policy {
	case PolicyFallback, PolicyStrict:
	default:
		errs = append(errs, fmt.Errorf("currency.policy %q is not one of fallback, strict", cfg.Currency.Policy))
	}

	switch cfg.Storage.Driver {
	case DriverSQLite:
		if cfg.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if cfg.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	case DriverNone:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of sqlite, postgres, none", cfg.Storage.Driver))
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json", cfg.Logging.Format))
	}

	for name, profile := range cfg.Profiles {
		for _, field := range profile.Required {
			if _, ok := cfg.Aliases[field]; !ok {
				errs = append(errs, fmt.Errorf("profiles.%s.required: unknown field %q", name, field))
			}
		}
		if profile.SheetIndex < 0 {
			errs = append(errs, fmt.Errorf("profiles.%s.sheet_index must not be negative", name))
		}
	}

	for _, rule := range cfg.TextRules {
		if _, ok := cfg.Aliases[rule.Field]; !ok {
			errs = append(errs, fmt.Errorf("text_rules: unknown field %q", rule.Field))
		}
	}

	return errors.Join(errs...)
}

// ProfileByName returns the named profile, falling back to DefaultProfile
// when name is empty.
func (c *MainConfig) ProfileByName(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return profile, nil
}
