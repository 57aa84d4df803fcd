// Package http provides the HTTP server adapter for the billing services.
// This is a thin adapter layer that translates HTTP requests to service and
// proof workspace calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/school-billing/internal/application/service"
	"github.com/garyjia/school-billing/internal/proof"
	"github.com/garyjia/school-billing/internal/receipt"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
	ProofDir       string
	ProofPrefix    string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxUploadBytes: 20 << 20,
		ProofDir:       "data/proofs",
		ProofPrefix:    "/proofs",
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	invoices   service.InvoiceService
	proofs     *proof.Registry
	recognizer proof.Recognizer
	parser     *receipt.Parser
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	invoices service.InvoiceService,
	proofs *proof.Registry,
	recognizer proof.Recognizer,
	parser *receipt.Parser,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	if config.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = config.MaxUploadBytes
	}

	server := &Server{
		config:     config,
		router:     router,
		invoices:   invoices,
		proofs:     proofs,
		recognizer: recognizer,
		parser:     parser,
		logger:     logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.invoices, s.proofs, s.recognizer, s.parser, s.config.MaxUploadBytes, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	if s.config.ProofDir != "" && s.config.ProofPrefix != "" {
		s.router.Static(s.config.ProofPrefix, s.config.ProofDir)
	}

	api := s.router.Group("/api")
	{
		api.POST("/ocr", handlers.RecognizeReceipt)

		api.POST("/invoices", handlers.CreateInvoice)
		api.GET("/invoices/:id", handlers.GetInvoice)
		api.PUT("/invoices/:id", handlers.UpdateInvoice)

		proofs := api.Group("/invoices/:id/proofs")
		{
			proofs.GET("", handlers.ListProofs)
			proofs.POST("", handlers.SelectProofs)
			proofs.POST("/save", handlers.SaveProofs)
			proofs.PATCH("/:proofId", handlers.EditProof)
			proofs.DELETE("/:proofId", handlers.RemoveProof)
			proofs.POST("/:proofId/add", handlers.AddProof)
			proofs.POST("/:proofId/verify", handlers.VerifyProof)
			proofs.POST("/:proofId/reject", handlers.RejectProof)
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
