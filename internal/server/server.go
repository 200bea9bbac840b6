// Package server provides the HTTP API for manualqa.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/config"
	"github.com/hyperjump/manualqa/internal/models"
)

// Service is the part of the index service the HTTP API needs.
type Service interface {
	Update(ctx context.Context, paths []string) (*models.IndexReport, error)
	Query(ctx context.Context, question string) (*models.QueryResult, error)
	Search(ctx context.Context, q string, limit int) ([]models.SearchHit, error)
	Status(ctx context.Context) (*models.IndexStatus, error)
	Documents(ctx context.Context, offset, limit int) ([]*models.Document, error)
}

// Server is the HTTP server for the manualqa API.
type Server struct {
	svc       Service
	corpusDir string
	config    *config.ServerConfig
	logger    *zap.Logger
	validate  *validator.Validate
	server    *http.Server
}

// NewServer creates a server. Uploaded files are stored in corpusDir.
func NewServer(svc Service, corpusDir string, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		svc:       svc,
		corpusDir: corpusDir,
		config:    cfg,
		logger:    logger,
		validate:  validator.New(),
	}
}

// Handler returns the router with every route and middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	r.Post("/upload", s.handleUpload)
	r.Post("/query", s.handleQuery)
	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/status", s.handleStatus)
		r.Get("/documents", s.handleDocuments)
		r.Get("/search", s.handleSearch)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
