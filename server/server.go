// Package server exposes the conversion pass over HTTP: manual triggers,
// execution history with run events, and the conversion settings.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/attrmigrate/am"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/logger"
	"github.com/teranos/attrmigrate/pulse/schedule"
	"github.com/teranos/attrmigrate/runlog"
)

const (
	// ShutdownTimeout bounds graceful shutdown of in-flight requests
	ShutdownTimeout = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// Runner runs one recorded conversion pass
type Runner interface {
	Execute(ctx context.Context, trigger string) (*schedule.Execution, *runlog.Summary, error)
}

// ExecutionReader reads execution history
type ExecutionReader interface {
	ListExecutions(ctx context.Context, opts schedule.ListOptions) ([]*schedule.Execution, int, error)
	GetExecution(ctx context.Context, id string) (*schedule.Execution, error)
}

// EventReader reads the run events of one execution
type EventReader interface {
	ListForExecution(ctx context.Context, executionID string) ([]runlog.Record, error)
}

// Rescheduler applies a new pass interval to the scheduler
type Rescheduler interface {
	Reschedule(ctx context.Context, intervalSeconds int) error
}

// ConfigStore reads and persists the conversion settings
type ConfigStore interface {
	Load() (*am.Config, error)
	SetAttributes(names []string) error
	SetInterval(seconds int) error
}

// Dependencies wires a Server. Rescheduler is optional; without it interval
// changes apply on the next daemon start.
type Dependencies struct {
	Runner      Runner
	Executions  ExecutionReader
	Events      EventReader
	Rescheduler Rescheduler
	Config      ConfigStore

	// Manual triggers allowed per minute; 0 disables the limit
	TriggerRatePerMinute int

	Logger *zap.SugaredLogger
}

// Server serves the conversion admin API
type Server struct {
	runner            Runner
	executions        ExecutionReader
	events            EventReader
	rescheduler       Rescheduler
	config            ConfigStore
	limiter           *rate.Limiter // nil when manual triggers are unlimited
	triggersPerMinute int
	logger            *zap.SugaredLogger
	mux               *http.ServeMux
}

// New creates a server from deps
func New(deps Dependencies) (*Server, error) {
	if deps.Runner == nil || deps.Executions == nil || deps.Events == nil {
		return nil, errors.New("server requires a runner, an execution reader and an event reader")
	}
	if deps.Config == nil {
		deps.Config = AMConfigStore{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.ComponentLogger("server")
	}

	s := &Server{
		runner:      deps.Runner,
		executions:  deps.Executions,
		events:      deps.Events,
		rescheduler: deps.Rescheduler,
		config:      deps.Config,
		logger:      deps.Logger,
		mux:         http.NewServeMux(),
	}
	if deps.TriggerRatePerMinute > 0 {
		s.triggersPerMinute = deps.TriggerRatePerMinute
		s.limiter = rate.NewLimiter(rate.Limit(float64(deps.TriggerRatePerMinute)/60.0), 1)
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all HTTP handlers
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/health", s.HandleHealth)
	s.mux.HandleFunc("POST /api/conversion/run", s.HandleRun)
	s.mux.HandleFunc("GET /api/conversion/executions", s.HandleListExecutions)
	s.mux.HandleFunc("GET /api/conversion/executions/{id}", s.HandleGetExecution)
	s.mux.HandleFunc("GET /api/conversion/executions/{id}/events", s.HandleExecutionEvents)
	s.mux.HandleFunc("GET /api/conversion/config", s.HandleGetConfig)
	s.mux.HandleFunc("PUT /api/conversion/config", s.HandlePutConfig)
}

// Handler returns the routed handler wrapped in request logging
func (s *Server) Handler() http.Handler {
	return s.requestLogging(s.mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Server ready", logger.FieldAddress, listener.Addr().String())
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	s.logger.Infow("Server shutting down", "timeout", ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}
	<-errCh
	return nil
}

// Addr formats a listen address for port on all interfaces
func Addr(port int) string {
	return ":" + strconv.Itoa(port)
}

// AMConfigStore reads and writes settings through the am package
type AMConfigStore struct{}

// Load returns a copy of the effective configuration
func (AMConfigStore) Load() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, err
	}
	copied := *cfg
	copied.Conversion.Attributes = append([]string(nil), cfg.Conversion.Attributes...)
	return &copied, nil
}

// SetAttributes persists the attribute list
func (AMConfigStore) SetAttributes(names []string) error {
	return am.UpdateConversionAttributes(names)
}

// SetInterval persists the pass interval
func (AMConfigStore) SetInterval(seconds int) error {
	return am.UpdateConversionInterval(seconds)
}
