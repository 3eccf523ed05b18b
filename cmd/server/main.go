// server is the semantic memory MCP server binary. It wires the vector
// store, embedding service, and tool surface together and serves MCP over
// stdio until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcp-semantic-memory/internal/analytics"
	"mcp-semantic-memory/internal/codeindex"
	"mcp-semantic-memory/internal/config"
	"mcp-semantic-memory/internal/crossproject"
	"mcp-semantic-memory/internal/dedup"
	"mcp-semantic-memory/internal/embeddings"
	"mcp-semantic-memory/internal/logging"
	"mcp-semantic-memory/internal/mcp"
	"mcp-semantic-memory/internal/memory"
	"mcp-semantic-memory/internal/session"
	"mcp-semantic-memory/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		offline    = flag.Bool("offline", false, "run on the in-memory store instead of Qdrant")
	)
	flag.Parse()

	if err := run(*configPath, *offline); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, offline bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.SetDefaultLogger(logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level)))
	logger := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emb, err := embeddings.NewServiceFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build embedding service: %w", err)
	}
	defer func() { _ = emb.Close() }()

	var store storage.VectorStore
	if offline {
		logger.Info("running offline on the in-memory store")
		store = storage.NewMemoryStore()
	} else {
		qdrantStore, storeErr := storage.NewQdrantStore(ctx, &cfg.Qdrant, cfg.Qdrant.TimeoutSeconds, emb.Dimension())
		if storeErr != nil {
			return fmt.Errorf("connect to qdrant at %s: %w", cfg.Qdrant.URL(), storeErr)
		}
		if initErr := qdrantStore.Initialize(ctx); initErr != nil {
			return fmt.Errorf("initialize collection %s: %w", cfg.Qdrant.Collection, initErr)
		}
		store = qdrantStore
	}
	defer func() { _ = store.Close() }()

	tracker := session.NewTracker(cfg.Session)
	defer tracker.Close()

	collector := analytics.NewCollector()

	memoryService := memory.NewService(store, emb, tracker, collector, memory.ServiceConfig{
		ReadOnly:             cfg.Server.ReadOnlyMode,
		DedupFetchMultiplier: cfg.Search.DedupFetchMultiplier,
		QueryExpansion:       cfg.Search.QueryExpansion,
		UsageTracking:        cfg.Analytics.UsageTracking,
		ConversationTracking: cfg.Memory.ConversationTracking,
		Weights:              cfg.Search.CompositeWeights,
	})

	detector, err := dedup.NewDetector(store, emb, dedup.DefaultThresholds())
	if err != nil {
		return fmt.Errorf("build duplicate detector: %w", err)
	}

	registry, err := crossproject.NewRegistry(cfg.CrossProject.RegistryPath)
	if err != nil {
		return fmt.Errorf("open consent registry: %w", err)
	}
	defer func() { _ = registry.Close() }()

	server := mcp.NewServer(cfg, mcp.Deps{
		Memory:        memoryService,
		Dedup:         detector,
		Relationships: dedup.NewRelationshipDetector(store, emb),
		CodeIndex:     codeindex.NewIndexer(store, emb),
		CrossProject:  crossproject.NewSearcher(registry, store, emb),
		Registry:      registry,
		Analytics:     collector,
	})

	logger.Info("starting semantic memory server",
		"read_only", cfg.Server.ReadOnlyMode,
		"embedding_backend", cfg.Embedding.Backend,
		"embedding_model", cfg.Embedding.Model,
		"offline", offline)

	serveErr := server.ServeStdio(ctx)
	stop()

	grace := time.Duration(cfg.Server.ShutdownGraceSeconds) * time.Second
	logger.Info("shutting down", "grace", grace.String())
	drainCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	<-drainCtx.Done()

	if serveErr != nil && ctx.Err() == nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}
