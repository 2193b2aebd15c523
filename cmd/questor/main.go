package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aldersea/questor/internal/agent"
	"github.com/aldersea/questor/internal/api"
	"github.com/aldersea/questor/internal/config"
	"github.com/aldersea/questor/internal/embedding"
	"github.com/aldersea/questor/internal/events"
	"github.com/aldersea/questor/internal/memory"
	"github.com/aldersea/questor/internal/ocr"
	"github.com/aldersea/questor/internal/planner"
	"github.com/aldersea/questor/internal/provider"
	"github.com/aldersea/questor/internal/runner"
	pgstore "github.com/aldersea/questor/internal/store"
	"github.com/aldersea/questor/internal/tool"
	"github.com/aldersea/questor/internal/vectorstore"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Questor...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/questor.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize completion provider
	if len(cfg.Providers) == 0 {
		logger.Fatal("no providers configured")
	}
	var prov provider.Provider
	for _, pc := range cfg.Providers {
		switch pc.Type {
		case "openai":
			prov = provider.NewOpenAIProvider(pc, logger)
		case "anthropic":
			prov = provider.NewAnthropicProvider(pc, logger)
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
			continue
		}
		break
	}
	if prov == nil {
		logger.Fatal("no usable provider configured")
	}
	client := provider.NewClient(prov, provider.ClientConfig{
		MinInterval: cfg.Agent.MinInterval(),
		MaxRetries:  cfg.Agent.MaxRetries,
	}, logger)

	// Initialize vector memory
	qdrant, err := vectorstore.NewClient(cfg.Database.Qdrant)
	if err != nil {
		logger.Fatal("qdrant unavailable", zap.Error(err))
	}
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		logger.Fatal("embedder init failed", zap.Error(err))
	}
	index := memory.NewVectorIndex(qdrant, embedder, cfg.Agent.MemoryCollection, logger)
	mem := memory.NewStore(index, logger)

	// Initialize capabilities
	registry := tool.NewRegistry()
	tool.RegisterBuiltins(registry)
	if cfg.OCR.Endpoint != "" {
		ocr.RegisterTool(registry, ocr.NewClient(cfg.OCR.Endpoint, logger))
	}
	if cfg.Extensions.Dir != "" {
		tool.LoadExtensions(registry, cfg.Extensions.Dir, logger)
	}
	logger.Info("Capabilities registered", zap.Strings("tools", registry.List()))

	// Initialize the agent
	pl := planner.New(client, cfg.Agent.Temperature, logger)
	ag := agent.New(agent.Config{
		Name:         cfg.Agent.Name,
		MaxSteps:     cfg.Agent.MaxSteps,
		Temperature:  cfg.Agent.Temperature,
		MemoryFanout: cfg.Agent.MemoryFanout,
	}, client, mem, pl, registry, logger)

	// Initialize PostgreSQL run history
	st, err := pgstore.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	if err := st.Migrate(context.Background(), "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Initialize run event bus
	var bus *events.Bus
	if cfg.Database.Redis.URL != "" {
		b, busErr := events.NewBus(cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without run events", zap.Error(busErr))
		} else {
			bus = b
		}
	}

	// Start the worker
	var sink runner.EventSink
	if bus != nil {
		sink = bus
	}
	worker := runner.New(ag, st, sink, 32, logger)
	worker.Start()

	// Build HTTP handler
	var source api.EventSource
	if bus != nil {
		source = bus
	}
	handler := api.NewHandler(st, worker, source, registry, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Questor listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Questor...")
	srv.Shutdown(context.Background())
	worker.Stop()
	if bus != nil {
		bus.Close()
	}
	st.Close()
	qdrant.Close()
}
