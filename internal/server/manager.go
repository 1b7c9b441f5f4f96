// Package server manages the process's HTTP listeners: the API server
// and the Prometheus metrics server run side by side and shut down
// together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds the listener settings.
type Config struct {
	// API listen address
	Addr string `yaml:"addr" json:"addr"`

	// Metrics listen address; empty disables the metrics server
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	// Read timeout
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// Write timeout. The advance endpoint blocks on human approval, so
	// this must exceed the approval wait timeout.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// Idle timeout
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns the default listener settings.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MetricsAddr:     ":9091",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Manager runs the API and metrics servers as one unit.
type Manager struct {
	api     *http.Server
	metrics *http.Server
	config  Config
	logger  *zap.Logger

	mu        sync.Mutex
	boundAPI  string
	boundMetr string
}

// NewManager creates a server manager. metricsHandler may be nil when
// Config.MetricsAddr is empty.
func NewManager(apiHandler, metricsHandler http.Handler, config Config, logger *zap.Logger) *Manager {
	m := &Manager{
		api: &http.Server{
			Addr:         config.Addr,
			Handler:      apiHandler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
		logger: logger.With(zap.String("component", "http_server")),
	}
	if config.MetricsAddr != "" && metricsHandler != nil {
		m.metrics = &http.Server{
			Addr:        config.MetricsAddr,
			Handler:     metricsHandler,
			ReadTimeout: config.ReadTimeout,
			IdleTimeout: config.IdleTimeout,
		}
	}
	return m
}

// Run serves until ctx is cancelled or a listener fails, then shuts
// both servers down gracefully. It returns once everything stopped.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	apiListener, err := net.Listen("tcp", m.api.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.api.Addr, err)
	}
	m.mu.Lock()
	m.boundAPI = apiListener.Addr().String()
	m.mu.Unlock()
	m.logger.Info("starting API server", zap.String("addr", apiListener.Addr().String()))
	g.Go(func() error {
		if err := m.api.Serve(apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if m.metrics != nil {
		metricsListener, err := net.Listen("tcp", m.metrics.Addr)
		if err != nil {
			_ = m.api.Close()
			return fmt.Errorf("listen on %s: %w", m.metrics.Addr, err)
		}
		m.mu.Lock()
		m.boundMetr = metricsListener.Addr().String()
		m.mu.Unlock()
		m.logger.Info("starting metrics server", zap.String("addr", metricsListener.Addr().String()))
		g.Go(func() error {
			if err := m.metrics.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		m.shutdown()
		return nil
	})

	return g.Wait()
}

// RunUntilSignal serves until SIGINT or SIGTERM arrives, then shuts
// down gracefully.
func (m *Manager) RunUntilSignal(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return m.Run(ctx)
}

// APIAddr returns the bound API listener address, useful with a ":0"
// configuration. Empty until Run has started listening.
func (m *Manager) APIAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boundAPI
}

// MetricsAddr returns the bound metrics listener address.
func (m *Manager) MetricsAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boundMetr
}

func (m *Manager) shutdown() {
	m.logger.Info("shutting down HTTP servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.config.ShutdownTimeout)
	defer cancel()

	if err := m.api.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("API server shutdown failed", zap.Error(err))
	}
	if m.metrics != nil {
		if err := m.metrics.Shutdown(shutdownCtx); err != nil {
			m.logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}
	m.logger.Info("HTTP servers stopped")
}
