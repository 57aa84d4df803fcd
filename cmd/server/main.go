package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/config"
	"github.com/garyjia/school-billing/internal/container"
	httpserver "github.com/garyjia/school-billing/internal/interfaces/http"
	"github.com/garyjia/school-billing/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting school billing service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("ocr_engine", cfg.OCR.Engine))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wire dependencies
	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown error", zap.Error(err))
		}
	}()

	// Set Gin mode based on logger level
	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			ProofDir:       cfg.Storage.ProofDir,
			ProofPrefix:    cfg.Storage.PublicPrefix,
		},
		c.Services().Invoices,
		c.Proofs(),
		c.Recognizer(),
		c.Parser(),
		c.ServiceLogger(),
	)

	// Blocks until a signal arrives or the listener fails
	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}
