package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tensor-ninja/agent-fix/internal/chunk"
	"github.com/tensor-ninja/agent-fix/internal/config"
	"github.com/tensor-ninja/agent-fix/internal/embedding"
	"github.com/tensor-ninja/agent-fix/internal/index"
	"github.com/tensor-ninja/agent-fix/internal/llm/configbuilder"
	"github.com/tensor-ninja/agent-fix/internal/observability"
	"github.com/tensor-ninja/agent-fix/internal/repair"
	indexrpc "github.com/tensor-ninja/agent-fix/internal/rpc/index"
	repairrpc "github.com/tensor-ninja/agent-fix/internal/rpc/repair"
	"github.com/tensor-ninja/agent-fix/internal/sandbox"
	"github.com/tensor-ninja/agent-fix/internal/tokenizer"
	"github.com/tensor-ninja/agent-fix/internal/tools"
)

// Server hosts the daemon endpoints: health/metrics, index management, and
// the streaming repair service.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	runner    repairrpc.Runner
	metrics   *observability.Metrics
	index     *index.Index
	workspace *tools.Workspace
}

// NewServer constructs a daemon instance with all services wired.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	registry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	metrics := observability.NewMetrics()

	codec, err := tokenizer.NewTiktoken("")
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	splitter := chunk.NewSplitter(codec, cfg.Embedding.ChunkTokens)
	embedClient := embedding.NewClient(
		cfg.Embedding.BaseURL,
		cfg.Embedding.APIKey,
		cfg.Embedding.Model,
		embedding.WithMetrics(metrics),
		embedding.WithRetryPolicy(cfg.Embedding.MaxRetries, cfg.Embedding.InitialBackoff),
	)
	embedService := embedding.NewService(embedClient, splitter)
	idx := index.New(embedService, cfg.Index.TopK)

	workspace, err := tools.NewWorkspace(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("build workspace: %w", err)
	}

	executor := sandbox.New(cfg.Sandbox)
	orchestrator := repair.NewOrchestrator(registry, executor, cfg.Repair, logger, repair.WithMetrics(metrics))
	runner := &repairrpc.RepairRunner{Orchestrator: orchestrator, Index: idx, Logger: logger}

	return &Server{
		cfg:       cfg,
		logger:    logger,
		runner:    runner,
		metrics:   metrics,
		index:     idx,
		workspace: workspace,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.Handle("/index", indexrpc.RebuildHandler{Index: s.index, Source: s.workspace, Metrics: s.metrics, Logger: s.logger})
	mux.Handle("/query", indexrpc.QueryHandler{Index: s.index})

	switch strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport)) {
	case "ndjson":
		mux.Handle("/repair/run", repairrpc.NewHandler(s.runner, s.metrics))
	default:
		path, handler := repairrpc.NewConnectHandler(s.runner, s.metrics)
		mux.Handle(path, handler)
		// keep the NDJSON path available for plain HTTP clients
		mux.Handle("/repair/run", repairrpc.NewHandler(s.runner, s.metrics))
	}

	handler := http.Handler(mux)
	if strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport)) != "ndjson" {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting agentfix daemon", zap.String("addr", s.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down agentfix daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
