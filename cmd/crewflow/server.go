package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/api/handlers"
	"github.com/BaSui01/crewflow/approval"
	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/internal/server"
	"github.com/BaSui01/crewflow/logging"
	"github.com/BaSui01/crewflow/workflow"
)

// app holds the wired service and the resources it must release on
// shutdown.
type app struct {
	servers *server.Manager
	closers []func() error
	logger  *zap.Logger
}

// Close releases held resources in reverse wiring order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

// buildApp wires the full pipeline from configuration: stores, agents,
// recovery, approval gate, orchestrator, and the HTTP surface.
func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}

	collector := metrics.NewCollector("crewflow", prometheus.DefaultRegisterer, logger)

	store, err := openWorkflowStore(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	approvalStore, err := openApprovalStore(cfg.Redis, logger, a)
	if err != nil {
		return nil, err
	}
	approvals := approval.NewClient(approvalStore, collector.RecordApprovalDecision, logger)

	completer := agent.NewHTTPCompleter(agent.HTTPCompleterConfig{
		Endpoint: cfg.Completer.Endpoint,
		Model:    cfg.Completer.Model,
		Timeout:  cfg.Completer.Timeout,
	}, logger)
	registry := agent.NewDefaultRegistry(completer, logger)

	var breakers *workflow.CircuitBreakerRegistry
	if cfg.Breaker.Enabled {
		breakers = workflow.NewCircuitBreakerRegistry(workflow.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
		}, func(operation string, _, newState workflow.CircuitState) {
			collector.RecordBreakerState(operation, int(newState))
		}, logger)
	}

	errorHandler := workflow.NewErrorHandler(workflow.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
		Exponential: cfg.Retry.Exponential,
	}, breakers, collector.RecordRetry, logger)

	monitor := workflow.NewPerformanceMonitor(cfg.Monitor.TimeThreshold, logger)

	orch, err := workflow.NewOrchestrator(workflow.OrchestratorOptions{
		Store:           store,
		Agents:          registry,
		Approvals:       approvals,
		ErrorHandler:    errorHandler,
		Monitor:         monitor,
		Events:          logging.NewWorkflowLogger(logger),
		Metrics:         collector,
		ApprovalTimeout: cfg.Approval.WaitTimeout,
		AgentRateLimit:  cfg.Server.AgentRateLimit,
		AgentRateBurst:  cfg.Server.AgentRateBurst,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	mux := http.NewServeMux()
	handlers.NewWorkflowHandler(orch, logger).Register(mux)
	handlers.NewApprovalHandler(approvals, logger).Register(mux)

	health := handlers.NewHealthHandler(logger)
	registerHealthChecks(health, approvalStore)
	health.Register(mux)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	serverCfg := server.DefaultConfig()
	serverCfg.Addr = fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	serverCfg.MetricsAddr = fmt.Sprintf(":%d", cfg.Server.MetricsPort)
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	// The advance endpoint blocks on human approval.
	if wt := cfg.Approval.WaitTimeout + cfg.Server.WriteTimeout; wt > serverCfg.WriteTimeout {
		serverCfg.WriteTimeout = wt
	}

	a.servers = server.NewManager(mux, metricsMux, serverCfg, logger)
	return a, nil
}

// openWorkflowStore selects the workflow store from the database
// configuration.
func openWorkflowStore(cfg config.DatabaseConfig, logger *zap.Logger) (workflow.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := workflow.OpenSQLite(cfg.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("workflow store ready",
			zap.String("driver", cfg.Driver),
			zap.String("dsn", cfg.DSN))
		return store, nil
	case "memory", "":
		logger.Info("workflow store ready", zap.String("driver", "memory"))
		return workflow.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// openApprovalStore selects the approval store. With redis enabled,
// decisions can arrive from a separate reviewer process.
func openApprovalStore(cfg config.RedisConfig, logger *zap.Logger, a *app) (approval.Store, error) {
	if !cfg.Enabled {
		return approval.NewMemoryStore(), nil
	}

	store, err := approval.NewRedisStore(approval.RedisStoreConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		TTL:      cfg.TTL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open redis approval store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	logger.Info("approval store ready", zap.String("addr", cfg.Addr))
	return store, nil
}

// registerHealthChecks adds readiness probes for external dependencies.
func registerHealthChecks(health *handlers.HealthHandler, approvalStore approval.Store) {
	if rs, ok := approvalStore.(*approval.RedisStore); ok {
		health.RegisterCheck(handlers.HealthCheckFunc{
			CheckName: "redis",
			Fn: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
				return rs.Ping(ctx)
			},
		})
	}
}
