package server

// Package server exposes the operator API.
//
// Responsibilities:
//   - REST endpoints for incidents, approvals, feedback, and calibration
//   - The websocket event stream at /ws/incidents
//   - Health and readiness probes, Prometheus metrics
//   - CORS policy from the configured allowed origins

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kkrriders/airra/internal/audit"
	"github.com/kkrriders/airra/internal/outcome"
	"github.com/kkrriders/airra/internal/store"
)

// Runner resumes operator-approved actions on the pipeline.
type Runner interface {
	ExecuteApproved(ctx context.Context, actionID string)
}

// Server is the operator-facing HTTP server.
type Server struct {
	logger   *zap.Logger
	store    store.Store
	outcomes *outcome.Store
	feedback *outcome.FeedbackStore
	audit    audit.Logger
	runner   Runner
	hub      *Hub

	allowedOrigins []string
	httpServer     *http.Server
}

// NewServer wires the operator API over the persistence and pipeline layers.
func NewServer(logger *zap.Logger, st store.Store, outcomes *outcome.Store, feedback *outcome.FeedbackStore, auditLog audit.Logger, runner Runner, port int, allowedOrigins []string) *Server {
	s := &Server{
		logger:         logger,
		store:          st,
		outcomes:       outcomes,
		feedback:       feedback,
		audit:          auditLog,
		runner:         runner,
		hub:            NewHub(logger, allowedOrigins),
		allowedOrigins: allowedOrigins,
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      c.Handler(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Hub returns the websocket hub so the pipeline can publish events.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/incidents", s.handleListIncidents).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{id}", s.handleGetIncident).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{id}/escalate", s.handleEscalateIncident).Methods(http.MethodPost)
	api.HandleFunc("/incidents/{id}/feedback", s.handleFeedback).Methods(http.MethodPost)
	api.HandleFunc("/approvals/pending", s.handlePendingApprovals).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{action_id}/approve", s.handleApprove).Methods(http.MethodPost)
	api.HandleFunc("/approvals/{action_id}/reject", s.handleReject).Methods(http.MethodPost)
	api.HandleFunc("/calibration", s.handleCalibration).Methods(http.MethodGet)

	r.HandleFunc("/ws/incidents", func(w http.ResponseWriter, req *http.Request) {
		s.hub.ServeWS(w, req)
	}).Methods(http.MethodGet)
	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("operator API listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }
