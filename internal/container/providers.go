package container

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/application/port"
	"github.com/garyjia/school-billing/internal/application/service"
	"github.com/garyjia/school-billing/internal/infrastructure/persistence/mongodb"
	"github.com/garyjia/school-billing/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/school-billing/internal/infrastructure/storage"
	"github.com/garyjia/school-billing/internal/ocr"
	"github.com/garyjia/school-billing/internal/proof"
	"github.com/garyjia/school-billing/internal/receipt"
	"github.com/garyjia/school-billing/pkg/database"
)

// RepositoryBundle holds the repositories of the selected backend and a
// closer for its connection.
type RepositoryBundle struct {
	Students port.StudentRepository
	Invoices port.InvoiceRepository
	Ping     func(ctx context.Context) error
	Close    func(ctx context.Context) error
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	FileStorage port.FileStorage
	ProofStore  *storage.ProofStore
}

// RecognitionBundle holds the OCR pipeline.
type RecognitionBundle struct {
	Parser       *receipt.Parser
	Engine       ocr.Recognizer
	Orchestrator *ocr.Orchestrator
}

// ProvideRepositories opens the configured backend, prepares its schema and
// returns its repositories.
func ProvideRepositories(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*RepositoryBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Driver {
	case DriverMongo:
		return provideMongo(ctx, cfg, logger)
	default:
		return provideSQLite(ctx, cfg, logger)
	}
}

// provideSQLite opens SQLite with WAL mode and runs the embedded migrations.
func provideSQLite(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*RepositoryBundle, error) {
	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(conn, logger).Up(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db := sqlite.NewDB(conn.DB, logger)
	return &RepositoryBundle{
		Students: sqlite.NewStudentRepository(db, logger),
		Invoices: sqlite.NewInvoiceRepository(db, logger),
		Ping:     conn.PingContext,
		Close: func(context.Context) error {
			return conn.Close()
		},
	}, nil
}

// provideMongo connects to MongoDB and ensures the unique indexes the
// student upsert and invoice codes rely on.
func provideMongo(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*RepositoryBundle, error) {
	store, err := mongodb.Connect(ctx, mongodb.Config{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		ConnectTimeout: cfg.ConnectTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	students := mongodb.NewStudentRepository(store, logger)
	return &RepositoryBundle{
		Students: students,
		Invoices: mongodb.NewInvoiceRepository(store, students, logger),
		Ping:     store.Ping,
		Close:    store.Close,
	}, nil
}

// ProvideStorage creates the proof image store.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := os.MkdirAll(cfg.ProofDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create proof directory: %w", err)
	}

	files := storage.NewLocalFileStorage(cfg.ProofDir, logger)
	return &StorageBundle{
		FileStorage: files,
		ProofStore:  storage.NewProofStore(files, cfg.PublicPrefix, logger),
	}, nil
}

// ProvideRecognition builds the receipt parser, the configured engine and
// the orchestrator around them.
func ProvideRecognition(cfg *Config, logger *zap.Logger) (*RecognitionBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	var engine ocr.Recognizer
	switch cfg.OCR.Engine {
	case EngineOpenAI:
		engine = ocr.NewVisionRecognizer(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger)
	default:
		engine = ocr.NewTesseractRecognizer(logger)
	}

	parser := receipt.NewParser(cfg.Locale)
	return &RecognitionBundle{
		Parser: parser,
		Engine: engine,
		Orchestrator: ocr.NewOrchestrator(
			engine,
			parser,
			cfg.OCR.Preprocess,
			cfg.OCR.EngineConfig,
			logger,
		),
	}, nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos  *RepositoryBundle
	Logger *zap.Logger
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Students *service.StudentResolver
	Invoices service.InvoiceService
}

// ProvideServices creates the student resolver and invoice service.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}
	resolver := service.NewStudentResolver(deps.Repos.Students, logger)

	return &ServiceBundle{
		Students: resolver,
		Invoices: service.NewInvoiceService(deps.Repos.Invoices, resolver, logger),
	}, nil
}

// ProvideProofRegistry creates the registry of proof review workspaces.
func ProvideProofRegistry(
	invoices service.InvoiceService,
	recognition *RecognitionBundle,
	images proof.ImageStore,
	logger *zap.Logger,
) (*proof.Registry, error) {
	if invoices == nil {
		return nil, fmt.Errorf("invoice service is required")
	}
	if recognition == nil {
		return nil, fmt.Errorf("recognition is required")
	}
	if images == nil {
		return nil, fmt.Errorf("image store is required")
	}

	return proof.NewRegistry(invoices, recognition.Orchestrator, recognition.Parser, images, logger), nil
}
