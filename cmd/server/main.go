// postlens - conversational analytics over a social-media post dataset.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/postlens/internal/agent"
	"github.com/ashureev/postlens/internal/api"
	"github.com/ashureev/postlens/internal/chatws"
	"github.com/ashureev/postlens/internal/classifier"
	"github.com/ashureev/postlens/internal/composer"
	"github.com/ashureev/postlens/internal/config"
	"github.com/ashureev/postlens/internal/conversation"
	"github.com/ashureev/postlens/internal/dataset"
	"github.com/ashureev/postlens/internal/domain"
	"github.com/ashureev/postlens/internal/identity"
	"github.com/ashureev/postlens/internal/llm"
	"github.com/ashureev/postlens/internal/middleware"
	"github.com/ashureev/postlens/internal/store"
	"github.com/ashureev/postlens/web"
)

const (
	sweepInterval       = 5 * time.Minute
	healthProbeInterval = 15 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	data, err := dataset.Load(cfg.Dataset.Path, dataset.Options{
		Sheet:    cfg.Dataset.Sheet,
		Location: cfg.Location(),
	})
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	info := data.Info()
	slog.Info("Dataset loaded",
		"source", info.Source,
		"rows", info.Rows,
		"dropped", info.Dropped,
		"start", info.Start,
		"end", info.End)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	var history store.HistoryStore = repo
	if cfg.History.Backend == "file" {
		history, err = store.NewFileHistory(cfg.History.Dir, logger)
		if err != nil {
			return fmt.Errorf("initialize file history: %w", err)
		}
	}
	slog.Info("History store ready", "backend", cfg.History.Backend)

	narrator, err := llm.NewProvider(llm.Config{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		APIURL:     cfg.LLM.APIURL,
		Timeout:    cfg.LLM.NarrationTimeout,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("initialize narration provider: %w", err)
	}
	classifierProvider, err := llm.NewProvider(llm.Config{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.ClassifierModel,
		APIKey:     cfg.LLM.APIKey,
		APIURL:     cfg.LLM.APIURL,
		Timeout:    cfg.LLM.ClassifierTimeout,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("initialize classifier provider: %w", err)
	}

	policy, err := classifier.LoadPolicy(cfg.LLM.PolicyFile, time.Now())
	if err != nil {
		return fmt.Errorf("load classifier policy: %w", err)
	}
	turnClassifier := classifier.NewLLM(classifierProvider, classifier.Config{
		Model:   cfg.LLM.ClassifierModel,
		Timeout: cfg.LLM.ClassifierTimeout,
		Policy:  policy,
	}, logger)
	slog.Info("Classifier ready", "model", cfg.LLM.ClassifierModel, "policy_year", policy.Year)

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}

	registry := conversation.NewRegistry(repo, cfg.SessionTTL, logger)
	composerOpts := composerOptions(cfg)

	agentCfg := agent.DefaultConfig()
	agentCfg.Language = composer.Language(cfg.LLM.Language)
	agentCfg.NarrationModel = cfg.LLM.Model
	agentCfg.NarrationTimeout = cfg.LLM.NarrationTimeout
	agentCfg.Composer = composerOpts

	service := agent.NewService(agent.ServiceDeps{
		Registry: registry,
		Engine:   conversation.NewEngine(turnClassifier, data, logger),
		Narrator: narrator,
		History:  history,
		Columns:  data,
		Log:      conversationLogger,
	}, agentCfg, logger)

	chatHandler := agent.NewHandler(service, cfg)
	defer chatHandler.Close()

	origins := middleware.Origins(cfg.FrontendURL)
	wsHandler := chatws.NewHandler(service, chatHandler.RateLimiter(), chatws.NewConnManager(), origins, cfg.IsDevelopment())
	defer wsHandler.Conns().CloseAll()

	apiHandler := api.NewHandler(api.Deps{
		Service:  service,
		History:  history,
		Dataset:  data,
		Composer: composerOpts,
	}, cfg)
	healthHandler := api.NewHealthHandler(repo, data)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(origins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
		apiHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry.StartSweeper(ctx, sweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if cfg.GRPCHealthAddr != "" {
		startGRPCHealth(gctx, g, cfg.GRPCHealthAddr, healthHandler)
	}

	return g.Wait()
}

// startGRPCHealth serves the standard gRPC health service and keeps its
// status in step with the HTTP readiness checks.
func startGRPCHealth(ctx context.Context, g *errgroup.Group, addr string, checker *api.HealthHandler) {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	probe := func() {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if _, err := checker.Check(ctx); err != nil {
			slog.Warn("gRPC health probe failed", "error", err)
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		healthServer.SetServingStatus("", status)
	}

	g.Go(func() error {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen grpc health: %w", err)
		}
		probe()
		slog.Info("gRPC health server listening", "addr", addr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(healthProbeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				probe()
			case <-ctx.Done():
				healthServer.Shutdown()
				grpcServer.GracefulStop()
				return nil
			}
		}
	})
}

func composerOptions(cfg *config.Config) composer.Options {
	metric, ok := domain.ParseMetric(cfg.Composer.AccountMetric)
	if !ok {
		metric = domain.MetricEngagements
	}
	return composer.Options{
		TopN:          cfg.Composer.TopN,
		AccountMetric: metric,
		RateThreshold: composer.RateThreshold(cfg.Composer.RateThreshold),
	}
}
