package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/application/service"
	"github.com/garyjia/school-billing/internal/proof"
	"github.com/garyjia/school-billing/internal/receipt"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	repositories *RepositoryBundle

	// Infrastructure - Storage
	storage *StorageBundle

	// Recognition
	recognition *RecognitionBundle

	// Application
	services *ServiceBundle
	proofs   *proof.Registry

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Storage
// 3. Recognition pipeline
// 4. Application services
// 5. Proof review registry
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization",
		zap.String("database_driver", c.config.Database.Driver),
		zap.String("ocr_engine", c.config.OCR.Engine))

	// Step 1: Initialize database and repositories
	repos, err := ProvideRepositories(ctx, &c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.repositories = repos
	c.logger.Info("Database initialized")

	// Step 2: Initialize storage
	storageBundle, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		c.closeRepositories()
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.storage = storageBundle
	c.logger.Info("Storage initialized", zap.String("proof_dir", c.config.Storage.ProofDir))

	// Step 3: Initialize recognition
	recognition, err := ProvideRecognition(c.config, c.logger)
	if err != nil {
		c.closeRepositories()
		return fmt.Errorf("failed to initialize recognition: %w", err)
	}
	c.recognition = recognition
	c.logger.Info("Recognition pipeline initialized")

	// Step 4: Initialize application services
	services, err := ProvideServices(&ServiceDeps{
		Repos:  c.repositories,
		Logger: c.logger,
	})
	if err != nil {
		c.closeRepositories()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services
	c.logger.Info("Application services initialized")

	// Step 5: Initialize proof registry
	registry, err := ProvideProofRegistry(services.Invoices, recognition, storageBundle.ProofStore, c.logger)
	if err != nil {
		c.closeRepositories()
		return fmt.Errorf("failed to initialize proof registry: %w", err)
	}
	c.proofs = registry
	c.logger.Info("Proof registry initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Step 1: Let in-flight recognitions settle (reverse of step 5)
	if c.proofs != nil {
		c.proofs.Shutdown()
		c.logger.Info("Proof registry drained")
	}

	// Steps 2-4: services, recognition and storage hold no resources

	// Step 5: Close database (reverse of step 1)
	if c.repositories != nil && c.repositories.Close != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.repositories.Close(ctx); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) closeRepositories() {
	if c.repositories == nil || c.repositories.Close == nil {
		return
	}
	if err := c.repositories.Close(context.Background()); err != nil {
		c.logger.Error("Failed to close database after init failure", zap.Error(err))
	}
	c.repositories = nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	// Check database
	if c.repositories != nil && c.repositories.Ping != nil {
		if err := c.repositories.Ping(ctx); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true, Message: c.config.Database.Driver}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check recognition
	if c.recognition != nil {
		status.Components["ocr"] = ComponentHealth{Healthy: true, Message: c.config.OCR.Engine}
	} else {
		status.Components["ocr"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	return status
}

// Getters for accessing container components

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Proofs returns the proof review registry.
func (c *Container) Proofs() *proof.Registry {
	return c.proofs
}

// Recognizer returns the receipt recognition pipeline.
func (c *Container) Recognizer() proof.Recognizer {
	if c.recognition == nil {
		return nil
	}
	return c.recognition.Orchestrator
}

// Parser returns the receipt text heuristics.
func (c *Container) Parser() *receipt.Parser {
	if c.recognition == nil {
		return nil
	}
	return c.recognition.Parser
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// ServiceLogger returns the container's logger adapted to the key-value
// interface used by the services and the HTTP adapter.
func (c *Container) ServiceLogger() service.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
