// Package container provides dependency injection and lifecycle management
// for the school billing backend.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/school-billing/internal/ocr"
	"github.com/garyjia/school-billing/internal/receipt"
)

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// OCR engines
const (
	EngineTesseract = "tesseract"
	EngineOpenAI    = "openai"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// OCR engine and preprocessing configuration
	OCR OCRConfig

	// Locale assumptions of the receipt heuristics
	Locale receipt.Locale

	// OpenAI configuration, used by the vision engine
	OpenAI OpenAIConfig

	// Storage configuration
	Storage StorageConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the backend: "sqlite" or "mongo"
	Driver string

	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long SQLite waits on a locked database
	BusyTimeout time.Duration

	// MongoURI is the MongoDB connection string
	MongoURI string

	// MongoDatabase is the MongoDB database name
	MongoDatabase string

	// ConnectTimeout bounds the initial MongoDB connection
	ConnectTimeout time.Duration
}

// OCRConfig holds recognition settings.
type OCRConfig struct {
	// Engine selects the recognizer: "tesseract" or "openai"
	Engine string

	// Engine settings passed on every recognition
	EngineConfig ocr.EngineConfig

	// Preprocess tunes image normalization before recognition
	Preprocess receipt.PreprocessOptions
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key
	APIKey string

	// Model is the vision model to use (e.g., "gpt-4o")
	Model string
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// ProofDir is the base directory for proof images
	ProofDir string

	// PublicPrefix is the URL path proof images are served under
	PublicPrefix string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// MaxUploadBytes limits a single proof upload
	MaxUploadBytes int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "data/billing.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
			MongoDatabase:   "school_billing",
			ConnectTimeout:  10 * time.Second,
		},
		OCR: OCRConfig{
			Engine:       EngineTesseract,
			EngineConfig: ocr.DefaultEngineConfig(),
			Preprocess:   receipt.DefaultPreprocessOptions(),
		},
		Locale: receipt.DefaultLocale(),
		OpenAI: OpenAIConfig{
			Model: "gpt-4o",
		},
		Storage: StorageConfig{
			ProofDir:     "data/proofs",
			PublicPrefix: "/proofs",
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 20 << 20,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverMongo:
		if c.Database.MongoURI == "" {
			return fmt.Errorf("database.mongo_uri is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.OCR.Engine {
	case EngineTesseract:
	case EngineOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key is required")
		}
	default:
		return fmt.Errorf("unknown OCR engine %q", c.OCR.Engine)
	}

	if c.Storage.ProofDir == "" {
		return fmt.Errorf("storage.proof_dir is required")
	}

	return nil
}
