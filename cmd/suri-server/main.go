// Package main provides the Suri Search server binary.
// The server exposes question answering, document analysis, schema
// management, ingestion and the accuracy suite over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/surisearch/suri-search/internal/accuracy"
	"github.com/surisearch/suri-search/internal/analyzer"
	"github.com/surisearch/suri-search/internal/ask"
	"github.com/surisearch/suri-search/internal/bus"
	"github.com/surisearch/suri-search/internal/config"
	"github.com/surisearch/suri-search/internal/docstore"
	"github.com/surisearch/suri-search/internal/ingest"
	"github.com/surisearch/suri-search/internal/pkg/logger"
	"github.com/surisearch/suri-search/internal/provider"
	"github.com/surisearch/suri-search/internal/qdrant"
	"github.com/surisearch/suri-search/internal/retrieval"
	"github.com/surisearch/suri-search/internal/router"
	"github.com/surisearch/suri-search/internal/schema"
	"github.com/surisearch/suri-search/internal/server"
	"github.com/surisearch/suri-search/internal/vector"
	"github.com/surisearch/suri-search/internal/watch"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "suri-server",
		Short: "Suri Search Server - document question answering over HTTP",
		Long: `Suri Search Server answers questions over ingested commission
statements and other tabular documents.

The server exposes:
  - HTTP API on :8080 (configurable) for ask, analyze, schema and ingest
  - An accuracy suite with failure diagnosis and self-optimization

Examples:
  suri-server                         # Start with defaults
  suri-server --port 9090             # Custom HTTP port
  suri-server --config suri.yaml      # Load a config file
  suri-server --memory                # In-process stores, no Qdrant/Redis`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().Int("port", 8080, "HTTP server port")
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().String("qdrant", "", "Qdrant URL (overrides config)")
	rootCmd.Flags().Bool("memory", false, "use in-process stores instead of Qdrant and Redis")
	rootCmd.Flags().String("watch", "", "drop folder to watch for documents")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("suri-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	qdrantURL, _ := cmd.Flags().GetString("qdrant")
	inMemory, _ := cmd.Flags().GetBool("memory")
	watchDir, _ := cmd.Flags().GetString("watch")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = host
	}
	if qdrantURL != "" {
		cfg.Qdrant.URL = qdrantURL
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("Starting Suri Search Server",
		"version", version,
		"addr", cfg.Address(),
		"dispatcher", cfg.Dispatcher.Type,
	)

	ctx := context.Background()

	// Redis backs schemas, documents and accuracy history when enabled.
	var redisClient *redis.Client
	if cfg.Redis.Enabled && !inMemory {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
		log.Info("Connected to Redis", "url", cfg.Redis.URL)
	}

	// Vector store: Qdrant in production, in-process for development.
	var store vector.Store
	if inMemory {
		store = vector.NewMemoryStore()
		log.Info("Using in-process vector store")
	} else {
		qdrantCfg, err := qdrant.ConfigFromURL(cfg.Qdrant.URL, cfg.Qdrant.APIKey,
			cfg.Qdrant.Collection, uint64(cfg.Provider.EmbedDim), cfg.Qdrant.Timeout)
		if err != nil {
			return fmt.Errorf("invalid Qdrant URL: %w", err)
		}
		qc, err := qdrant.NewClient(qdrantCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		defer func() { _ = qc.Close() }()
		if err := qc.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("failed to ensure Qdrant collection: %w", err)
		}
		store = qc
		log.Info("Connected to Qdrant", "collection", cfg.Qdrant.Collection)
	}

	var docs docstore.Store
	var schemaStorage schema.Storage
	var accuracyStorage accuracy.Storage
	if redisClient != nil {
		docs = docstore.NewRedisStore(redisClient)
		schemaStorage = schema.NewRedisStorage(redisClient)
		accuracyStorage = accuracy.NewRedisStorage(redisClient)
	} else {
		docs = docstore.NewMemoryStore()
		schemaStorage = schema.NewMemoryStorage()
		accuracyStorage = accuracy.NewMemoryStorage()
	}

	prov := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		EmbedModel:     cfg.Provider.EmbedModel,
		EmbedDimension: cfg.Provider.EmbedDim,
		ChatModel:      cfg.Provider.ChatModel,
		Temperature:    cfg.Provider.Temperature,
		MaxTokens:      cfg.Provider.MaxTokens,
		CacheSize:      cfg.Provider.CacheSize,
	}, log)

	registry := schema.NewRegistry(schemaStorage, schema.EmbeddingConfig{
		Model:     cfg.Provider.EmbedModel,
		Dimension: cfg.Provider.EmbedDim,
	}, log)

	engine := retrieval.NewEngine(store, prov, docs, nil, registry, retrieval.EngineConfig{
		OrgPartition:    "org_main",
		MaxPartitions:   cfg.Retrieval.MaxConcurrentPartitions,
		StatsTTL:        cfg.Retrieval.StatsCacheTTL,
		DefaultTopK:     cfg.Retrieval.DefaultTopK,
		DefaultMinScore: cfg.Retrieval.DefaultMinScore,
	}, log)
	defer engine.Close()

	askSvc := ask.NewService(router.New(), engine, prov, log)

	// Ingestion runs off the dispatcher so uploads return immediately.
	dispatcher, err := bus.New(cfg.Dispatcher.Type, bus.KafkaConfig{
		Brokers: cfg.KafkaBrokerList(),
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer func() { _ = dispatcher.Close() }()

	ingestor := ingest.New(analyzer.New(log), registry, prov, store, docs, engine, log)
	if err := dispatcher.Subscribe(ctx, bus.TopicDocumentProcess, ingestor.HandleJob); err != nil {
		return fmt.Errorf("failed to subscribe ingestor: %w", err)
	}
	log.Info("Subscribed ingestor", "topic", bus.TopicDocumentProcess)

	// Optional drop folder: files landing there become ingestion jobs.
	if watchDir != "" {
		watcher, err := watch.New(watch.Config{Dir: watchDir, InitialSync: true}, dispatcher, log)
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		go func() {
			if err := watcher.Start(ctx); err != nil && err != context.Canceled {
				log.WithError(err).Error("watcher stopped")
			}
		}()
		defer watcher.Stop()
	}

	executor := func(ctx context.Context, query string, target map[string]string) (*ask.Outcome, error) {
		return askSvc.Ask(ctx, ask.Request{Query: query, TargetContext: target})
	}
	runner := accuracy.NewRunner(accuracyStorage, executor, log)
	optimizer := accuracy.NewOptimizer(registry, accuracyStorage, log)

	srv := server.New(server.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		Version:         version,
		APIKey:          cfg.Security.APIKey,
		RateLimit:       cfg.Security.RateLimit,
		CORSOrigins:     cfg.Security.CORSOrigins,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}, server.Deps{
		Ask:        askSvc,
		Engine:     engine,
		Analyzer:   analyzer.New(log),
		Registry:   registry,
		Runner:     runner,
		Optimizer:  optimizer,
		Accuracy:   accuracyStorage,
		Dispatcher: dispatcher,
		Log:        log,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}

	log.Info("Server stopped")
	return nil
}
