package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/school-billing/internal/container"
	"github.com/garyjia/school-billing/internal/domain/entity"
	"github.com/garyjia/school-billing/internal/ocr"
	"github.com/garyjia/school-billing/internal/receipt"
)

// Database drivers and OCR engines accepted in the config file
const (
	DriverSQLite    = container.DriverSQLite
	DriverMongo     = container.DriverMongo
	EngineTesseract = container.EngineTesseract
	EngineOpenAI    = container.EngineOpenAI
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Locale   LocaleConfig   `mapstructure:"locale"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds database configuration. Path and the pool settings
// apply to sqlite, the mongo_* settings to mongo.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	MongoURI        string        `mapstructure:"mongo_uri"`
	MongoDatabase   string        `mapstructure:"mongo_database"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// OCRConfig selects the recognition engine and tunes preprocessing
type OCRConfig struct {
	Engine           string  `mapstructure:"engine"`
	Language         string  `mapstructure:"language"`
	Whitelist        string  `mapstructure:"whitelist"`
	PageSegMode      int     `mapstructure:"page_seg_mode"`
	DPI              int     `mapstructure:"dpi"`
	MaxDimension     int     `mapstructure:"max_dimension"`
	ContrastGain     float64 `mapstructure:"contrast_gain"`
	ContrastMidpoint float64 `mapstructure:"contrast_midpoint"`
	Threshold        float64 `mapstructure:"threshold"`
}

// LocaleConfig holds the currency and bank-name assumptions of the receipt
// heuristics
type LocaleConfig struct {
	CurrencyPrefixes []string             `mapstructure:"currency_prefixes"`
	MethodRules      []receipt.MethodRule `mapstructure:"method_rules"`
	DefaultMethod    string               `mapstructure:"default_method"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// StorageConfig holds proof image storage configuration
type StorageConfig struct {
	ProofDir     string `mapstructure:"proof_dir"`
	PublicPrefix string `mapstructure:"public_prefix"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. A .env file
// in the working directory is applied to the environment first if present.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", 20<<20)

	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/billing.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.mongo_database", "school_billing")
	v.SetDefault("database.connect_timeout", 10*time.Second)

	// OCR defaults
	preprocess := receipt.DefaultPreprocessOptions()
	engine := ocr.DefaultEngineConfig()
	v.SetDefault("ocr.engine", EngineTesseract)
	v.SetDefault("ocr.language", engine.Language)
	v.SetDefault("ocr.whitelist", engine.Whitelist)
	v.SetDefault("ocr.page_seg_mode", engine.PageSegMode)
	v.SetDefault("ocr.dpi", engine.DPI)
	v.SetDefault("ocr.max_dimension", preprocess.MaxDimension)
	v.SetDefault("ocr.contrast_gain", preprocess.ContrastGain)
	v.SetDefault("ocr.contrast_midpoint", preprocess.ContrastMidpoint)
	v.SetDefault("ocr.threshold", preprocess.Threshold)

	// Locale defaults
	locale := receipt.DefaultLocale()
	v.SetDefault("locale.currency_prefixes", locale.CurrencyPrefixes)
	v.SetDefault("locale.default_method", string(locale.DefaultMethod))

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o")

	// Storage defaults
	v.SetDefault("storage.proof_dir", "data/proofs")
	v.SetDefault("storage.public_prefix", "/proofs")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("database.mongo_uri", "MONGODB_URI")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("ocr.engine", "OCR_ENGINE")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverMongo:
		if c.Database.MongoURI == "" {
			return fmt.Errorf("database.mongo_uri is required for the mongo driver")
		}
		if c.Database.MongoDatabase == "" {
			return fmt.Errorf("database.mongo_database is required for the mongo driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMongo, c.Database.Driver)
	}

	switch c.OCR.Engine {
	case EngineTesseract:
	case EngineOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key is required for the openai OCR engine")
		}
	default:
		return fmt.Errorf("ocr.engine must be %q or %q, got %q", EngineTesseract, EngineOpenAI, c.OCR.Engine)
	}

	if c.OCR.MaxDimension <= 0 {
		return fmt.Errorf("ocr.max_dimension must be positive")
	}
	if c.OCR.Threshold < 0 || c.OCR.Threshold > 255 {
		return fmt.Errorf("ocr.threshold must be within 0-255")
	}

	for i, rule := range c.Locale.MethodRules {
		if !rule.Method.IsValid() {
			return fmt.Errorf("locale.method_rules[%d]: unknown payment method %q", i, rule.Method)
		}
	}
	if c.Locale.DefaultMethod != "" && !entity.PaymentMethod(c.Locale.DefaultMethod).IsValid() {
		return fmt.Errorf("locale.default_method: unknown payment method %q", c.Locale.DefaultMethod)
	}

	if c.Storage.ProofDir == "" {
		return fmt.Errorf("storage.proof_dir is required")
	}

	return nil
}
