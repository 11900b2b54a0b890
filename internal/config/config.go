package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
	Schema   SchemaConfig   `yaml:"schema" envconfig:"SCHEMA"`
	Cleaning CleaningConfig `yaml:"cleaning" envconfig:"CLEANING"`
	Features FeaturesConfig `yaml:"features" envconfig:"FEATURES"`
	Analysis AnalysisConfig `yaml:"analysis" envconfig:"ANALYSIS"`
}

// ServerConfig contains HTTP data-API server configuration
type ServerConfig struct {
	Port            int     `yaml:"port" envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeoutSec  int     `yaml:"read_timeout_sec" envconfig:"READ_TIMEOUT_SEC" default:"15"`
	WriteTimeoutSec int     `yaml:"write_timeout_sec" envconfig:"WRITE_TIMEOUT_SEC" default:"60"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"25"`
	RateLimitBurst  int     `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"text" validate:"oneof=text json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/pipeline.log"`
}

// SchemaConfig names the raw input columns. The raw exports carry the
// ILS's German column headers; tests substitute their own schema.
type SchemaConfig struct {
	IssueColumn        string `yaml:"issue_column" envconfig:"ISSUE_COLUMN" default:"Ausleihdatum/Uhrzeit" validate:"required"`
	ReturnColumn       string `yaml:"return_column" envconfig:"RETURN_COLUMN" default:"Rückgabedatum/Uhrzeit" validate:"required"`
	UserIDColumn       string `yaml:"user_id_column" envconfig:"USER_ID_COLUMN" default:"Benutzer-Systemnummer" validate:"required"`
	UserCategoryColumn string `yaml:"user_category_column" envconfig:"USER_CATEGORY_COLUMN" default:"Benutzerkategorie"`
	MediaTypeColumn    string `yaml:"media_type_column" envconfig:"MEDIA_TYPE_COLUMN" default:"Medientyp"`
	ISBNColumn         string `yaml:"isbn_column" envconfig:"ISBN_COLUMN" default:"ISBN"`
	BarcodeColumn      string `yaml:"barcode_column" envconfig:"BARCODE_COLUMN" default:"Barcode"`
	LoanDurationColumn string `yaml:"loan_duration_column" envconfig:"LOAN_DURATION_COLUMN" default:"Leihdauer"`
	DaysLateColumn     string `yaml:"days_late_column" envconfig:"DAYS_LATE_COLUMN" default:"Tage_zu_spät"`
	LateColumn         string `yaml:"late_column" envconfig:"LATE_COLUMN" default:"Verspätet"`
	ExtensionsColumn   string `yaml:"extensions_column" envconfig:"EXTENSIONS_COLUMN" default:"Anzahl_Verlängerungen"`
	ClosedDateColumn   string `yaml:"closed_date_column" envconfig:"CLOSED_DATE_COLUMN" default:"schliesstag" validate:"required"`
}

// CleaningConfig contains removal-rule thresholds and the open-day calendar mask
type CleaningConfig struct {
	// OpenWeekdayMask covers Mon..Sun; '1' marks a day the library is open.
	OpenWeekdayMask      string   `yaml:"open_weekday_mask" envconfig:"OPEN_WEEKDAY_MASK" default:"0111110" validate:"len=7"`
	RemoveUserCategories []string `yaml:"remove_user_categories" envconfig:"REMOVE_USER_CATEGORIES" default:"MDA,MZUZL,SYS"`
	BaseAllowedOpenDays  int      `yaml:"base_allowed_open_days" envconfig:"BASE_ALLOWED_OPEN_DAYS" default:"28" validate:"min=1"`
	MaxExtensionsCap     int      `yaml:"max_extensions_cap" envconfig:"MAX_EXTENSIONS_CAP" default:"6" validate:"min=0"`
}

// FeaturesConfig contains feature-derivation thresholds
type FeaturesConfig struct {
	ExperienceCutoff int `yaml:"experience_cutoff" envconfig:"EXPERIENCE_CUTOFF" default:"3" validate:"min=1"`
}

// AnalysisConfig contains estimator parameters
type AnalysisConfig struct {
	MaxSessionIndex     int     `yaml:"max_session_index" envconfig:"MAX_SESSION_INDEX" default:"25" validate:"min=1"`
	SmoothingWindow     int     `yaml:"smoothing_window" envconfig:"SMOOTHING_WINDOW" default:"3" validate:"min=1"`
	BootstrapResamples  int     `yaml:"bootstrap_resamples" envconfig:"BOOTSTRAP_RESAMPLES" default:"1000" validate:"min=1"`
	StickinessResamples int     `yaml:"stickiness_resamples" envconfig:"STICKINESS_RESAMPLES" default:"300" validate:"min=1"`
	Alpha               float64 `yaml:"alpha" envconfig:"ALPHA" default:"0.05" validate:"gt=0,lt=1"`
	FirstKThresholds    []int   `yaml:"first_k_thresholds" envconfig:"FIRST_K_THRESHOLDS" default:"2,5,10"`
	MinSessionObs       int     `yaml:"min_session_obs" envconfig:"MIN_SESSION_OBS" default:"0" validate:"min=0"`
	MinUserVisits       int     `yaml:"min_user_visits" envconfig:"MIN_USER_VISITS" default:"10" validate:"min=1"`
	Permutations        int     `yaml:"permutations" envconfig:"PERMUTATIONS" default:"1000" validate:"min=1"`
	ExtremePercentile   float64 `yaml:"extreme_percentile" envconfig:"EXTREME_PERCENTILE" default:"1" validate:"gt=0,lt=100"`
	Seed                int64   `yaml:"seed" envconfig:"SEED" default:"42"`
	Workers             int     `yaml:"workers" envconfig:"WORKERS" default:"4" validate:"min=1"`
}

// Load loads configuration from environment variables and an optional
// config file. Environment variables (prefix BIBLIO) take precedence.
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("BIBLIO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Paths.DataDir == "" {
		envConfig.Paths.DataDir = fileConfig.Paths.DataDir
	}
	if envConfig.Paths.ProcessedVersion == "" {
		envConfig.Paths.ProcessedVersion = fileConfig.Paths.ProcessedVersion
	}
	if envConfig.Logging.Level == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if envConfig.Analysis.Seed == 0 {
		envConfig.Analysis.Seed = fileConfig.Analysis.Seed
	}
	return envConfig
}

// getConfigFilePath returns the config file location, overridable via env
func getConfigFilePath() string {
	if p := os.Getenv("BIBLIO_CONFIG_FILE"); p != "" {
		return p
	}
	return "config.yaml"
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for structural problems
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	mask := c.Cleaning.OpenWeekdayMask
	if strings.Trim(mask, "01") != "" {
		return fmt.Errorf("open_weekday_mask must contain only '0' and '1': %q", mask)
	}
	if !strings.Contains(mask, "1") {
		return fmt.Errorf("open_weekday_mask marks no open days: %q", mask)
	}
	return nil
}

// Default returns a configuration with all struct-tag defaults applied
// and no environment or file input. Used by tests and as a fallback.
func Default() *Config {
	var cfg Config
	// envconfig fills defaults when no BIBLIO_* variables are set; the
	// tag defaults are always valid, so the error path is unreachable.
	if err := envconfig.Process("BIBLIO_DEFAULTS_UNUSED", &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// OpenWeekdays converts the Mon..Sun mask string into per-weekday flags
// indexed by time.Weekday (Sunday == 0).
func (c *CleaningConfig) OpenWeekdays() [7]bool {
	var open [7]bool
	for i, ch := range c.OpenWeekdayMask {
		if ch != '1' {
			continue
		}
		// mask position 0 is Monday; time.Weekday 0 is Sunday
		open[(i+1)%7] = true
	}
	return open
}
