package config

import (
	"github.com/garyjia/school-billing/internal/container"
	"github.com/garyjia/school-billing/internal/domain/entity"
	"github.com/garyjia/school-billing/internal/ocr"
	"github.com/garyjia/school-billing/internal/receipt"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			MongoURI:        c.Database.MongoURI,
			MongoDatabase:   c.Database.MongoDatabase,
			ConnectTimeout:  c.Database.ConnectTimeout,
		},
		OCR: container.OCRConfig{
			Engine: c.OCR.Engine,
			EngineConfig: ocr.EngineConfig{
				Language:    c.OCR.Language,
				Whitelist:   c.OCR.Whitelist,
				PageSegMode: c.OCR.PageSegMode,
				DPI:         c.OCR.DPI,
			},
			Preprocess: receipt.PreprocessOptions{
				MaxDimension:     c.OCR.MaxDimension,
				ContrastGain:     c.OCR.ContrastGain,
				ContrastMidpoint: c.OCR.ContrastMidpoint,
				Threshold:        c.OCR.Threshold,
			},
		},
		Locale: c.locale(),
		OpenAI: container.OpenAIConfig{
			APIKey: c.OpenAI.APIKey,
			Model:  c.OpenAI.Model,
		},
		Storage: container.StorageConfig{
			ProofDir:     c.Storage.ProofDir,
			PublicPrefix: c.Storage.PublicPrefix,
		},
		Server: container.ServerConfig{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			MaxUploadBytes: c.Server.MaxUploadBytes,
		},
	}
}

// locale falls back to the built-in method rules when the file has none
func (c *Config) locale() receipt.Locale {
	locale := receipt.DefaultLocale()
	if len(c.Locale.CurrencyPrefixes) > 0 {
		locale.CurrencyPrefixes = c.Locale.CurrencyPrefixes
	}
	if len(c.Locale.MethodRules) > 0 {
		locale.MethodRules = c.Locale.MethodRules
	}
	if c.Locale.DefaultMethod != "" {
		locale.DefaultMethod = entity.PaymentMethod(c.Locale.DefaultMethod)
	}
	return locale
}
