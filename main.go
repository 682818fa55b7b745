package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend/mssql"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend/powerbi"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/auth"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/config"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/database"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/handlers"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/llm"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/repositories"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("history_enabled", cfg.Database.URL != ""))

	completion, err := llm.NewCompletionClient(cfg.LLM.Provider, &llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create completion client", zap.Error(err))
	}

	tokens, err := auth.NewAADProvider(auth.ClientCredentials{
		TenantID:     cfg.Azure.TenantID,
		ClientID:     cfg.Azure.ClientID,
		ClientSecret: cfg.Azure.ClientSecret,
	}, http.DefaultClient, logger)
	if err != nil {
		logger.Fatal("Failed to create token provider", zap.Error(err))
	}

	registry := backend.NewRegistry(logger)
	registry.Register(models.BackendSQL, func(ctx context.Context, identity models.ConnectionIdentity, l *zap.Logger) (backend.Backend, error) {
		return mssql.New(ctx, identity, tokens, l)
	})
	registry.Register(models.BackendSemanticModel, func(ctx context.Context, identity models.ConnectionIdentity, l *zap.Logger) (backend.Backend, error) {
		return powerbi.New(identity, tokens, http.DefaultClient, l)
	})

	var historyRepo repositories.QueryHistoryRepository
	var historyRecorder services.HistoryRecorder
	if cfg.Database.URL != "" {
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath, logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL,
			MaxConnections: cfg.Database.MaxConnections,
		})
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		historyRepo = repositories.NewQueryHistoryRepository(db)
		historyRecorder = historyRepo
	}

	engine, err := services.NewOrchestrator(cfg, registry, completion, historyRecorder, logger)
	if err != nil {
		logger.Fatal("Failed to create orchestrator", zap.Error(err))
	}
	defer engine.Close()

	backendDefaults := map[models.BackendKind]models.ConnectionIdentity{
		models.BackendSQL: {
			Kind:     models.BackendSQL,
			Endpoint: cfg.Fabric.Endpoint,
			Database: cfg.Fabric.Database,
		},
		models.BackendSemanticModel: {
			Kind:     models.BackendSemanticModel,
			Endpoint: cfg.PowerBI.APIBase,
			Database: cfg.PowerBI.DatasetID,
		},
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(engine, historyRepo, backendDefaults, logger).RegisterRoutes(mux)

	addr := net.JoinHostPort(cfg.BindAddr, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting fabric-chat-engine",
			zap.String("addr", addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
