package web

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
	"github.com/braulionova/bybit-orderflow-bot/internal/usecase"
)

// Server exposes the read-only status surface as JSON. It never mutates
// trading state.
type Server struct {
	router    *http.ServeMux
	server    *http.Server
	pipeline  *usecase.Pipeline
	validator *usecase.Validator
	repo      domain.SignalRepository
	logger    *zap.Logger
}

func NewServer(
	port int,
	pipeline *usecase.Pipeline,
	validator *usecase.Validator,
	repo domain.SignalRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		pipeline:  pipeline,
		validator: validator,
		repo:      repo,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /signal", s.handleSignal)
	s.router.HandleFunc("GET /metrics/latest", s.handleMetrics)
	s.router.HandleFunc("GET /history", s.handleHistory)
}

func (s *Server) Start() error {
	s.logger.Info("status server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
