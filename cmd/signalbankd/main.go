// Signalbankd is the memory and learning daemon for the trading-signal agent.
//
// It assembles working, episodic, semantic, and procedural memory behind one
// manager, learns from trade outcomes and feedback, and serves health and
// metrics over HTTP.
//
// Configuration is loaded from a YAML file and SIGNALBANK_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start with the default config file (~/.config/signalbank/config.yaml)
//	signalbankd
//
//	# Start with an explicit config file
//	signalbankd -config /etc/signalbank/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signalbank/internal/config"
	"github.com/fyrsmithlabs/signalbank/internal/embeddings"
	"github.com/fyrsmithlabs/signalbank/internal/learning"
	"github.com/fyrsmithlabs/signalbank/internal/logging"
	"github.com/fyrsmithlabs/signalbank/internal/memory"
	"github.com/fyrsmithlabs/signalbank/internal/retry"
	"github.com/fyrsmithlabs/signalbank/internal/storage"
	"github.com/fyrsmithlabs/signalbank/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  signalbankd           Start the signalbank daemon\n")
			fmt.Fprintf(os.Stderr, "  signalbankd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("signalbankd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger
//  3. Open storage and the vector store
//  4. Wire memory stores behind the memory manager
//  5. Wire the learning stack and restore persisted learner state
//  6. Start the learning scheduler and the HTTP server
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("Starting signalbankd",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	memoryMgr, learningMgr, err := initManagers(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("initializing managers: %w", err)
	}
	defer func() {
		if err := memoryMgr.Close(); err != nil {
			logger.Warn("memory manager close failed", zap.Error(err))
		}
	}()
	defer func() {
		if err := learningMgr.Close(); err != nil {
			logger.Warn("learning manager close failed", zap.Error(err))
		}
	}()

	if err := learningMgr.Restore(ctx); err != nil {
		logger.Warn("Failed to restore learner state, starting fresh", zap.Error(err))
	}

	scheduler, err := learning.NewScheduler(learningMgr, logger,
		learning.WithInterval(cfg.Learning.CycleInterval),
		learning.WithCycleTimeout(cfg.Learning.CycleTimeout),
	)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer func() {
		_ = scheduler.Stop()
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/healthz", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// dependencies holds all infrastructure resources.
type dependencies struct {
	repos       repositories
	vectorStore *vectorstore.ChromemStore
	embedder    embeddings.Provider
	logger      *zap.Logger

	closeRepos func() error
}

// repositories is the full persistence surface the managers wire against.
type repositories interface {
	memory.ActorRepository
	memory.SubjectRepository
	memory.PatternRepository
	learning.OutcomeRepository
	learning.FeedbackRepository
	learning.QRepository
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.closeRepos != nil {
		if err := d.closeRepos(); err != nil {
			d.logger.Warn("storage close failed", zap.Error(err))
		}
	}
	if d.vectorStore != nil {
		if err := d.vectorStore.Close(); err != nil {
			d.logger.Warn("vector store close failed", zap.Error(err))
		}
	}
	if d.embedder != nil {
		if err := d.embedder.Close(); err != nil {
			d.logger.Warn("embedder close failed", zap.Error(err))
		}
	}
}

// initDependencies opens storage, the embedding provider, and the vector
// store.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	logger.Info("Embedding provider initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimension", embedder.Dimension()))

	vectorStore, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:              cfg.Memory.ChromemPath,
		DefaultCollection: cfg.Memory.Collection,
		VectorSize:        embedder.Dimension(),
	}, embedder, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	logger.Info("Vector store initialized",
		zap.String("path", cfg.Memory.ChromemPath),
		zap.String("collection", cfg.Memory.Collection))

	deps := &dependencies{
		vectorStore: vectorStore,
		embedder:    embedder,
		logger:      logger,
	}

	switch cfg.Storage.Driver {
	case "memory":
		deps.repos = storage.NewMemStore()
		deps.closeRepos = func() error { return nil }
	default:
		path, err := config.ExpandHome(cfg.Storage.SQLitePath)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("resolving sqlite path: %w", err)
		}
		store, err := storage.NewSQLiteStore(path, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		deps.repos = store
		deps.closeRepos = store.Close
		logger.Info("SQLite store opened", zap.String("path", path))
	}

	return deps, nil
}

// initManagers wires the memory and learning subsystems.
func initManagers(cfg *config.Config, deps *dependencies, logger *zap.Logger) (*memory.Manager, *learning.Manager, error) {
	working := memory.NewWorkingMemory(cfg.Memory.MaxHistory)

	episodic, err := memory.NewEpisodicStore(deps.vectorStore, cfg.Memory.Collection, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating episodic store: %w", err)
	}
	semantic, err := memory.NewSemanticStore(deps.repos, deps.repos, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating semantic store: %w", err)
	}
	procedural, err := memory.NewProceduralStore(deps.repos, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating procedural store: %w", err)
	}

	memoryMgr, err := memory.NewManager(memory.ManagerConfig{
		SimilarityLimit: cfg.Memory.SimilarityLimit,
		PatternLimit:    cfg.Memory.PatternLimit,
		PerStoreTimeout: cfg.Memory.PerStoreTimeout,
		Retry: retry.Config{
			MaxRetries:     cfg.Memory.RecordMaxRetries,
			InitialBackoff: cfg.Memory.RecordInitialBackoff,
			MaxBackoff:     cfg.Memory.RecordMaxBackoff,
		},
	}, working, episodic, semantic, procedural, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating memory manager: %w", err)
	}

	learner := learning.NewLearner(learning.LearnerConfig{
		LearningRate:       cfg.Learning.LearningRate,
		DiscountFactor:     cfg.Learning.DiscountFactor,
		ExplorationRate:    cfg.Learning.ExplorationRate,
		MinExplorationRate: cfg.Learning.MinExplorationRate,
		ExplorationDecay:   cfg.Learning.ExplorationDecay,
	}, logger)

	processor, err := learning.NewProcessor(semantic, learner, deps.repos, deps.repos, cfg.Learning.RewardScale, logger,
		learning.WithRetry(retry.Config{
			MaxRetries:     cfg.Memory.RecordMaxRetries,
			InitialBackoff: cfg.Memory.RecordInitialBackoff,
			MaxBackoff:     cfg.Memory.RecordMaxBackoff,
		}))
	if err != nil {
		return nil, nil, fmt.Errorf("creating feedback processor: %w", err)
	}
	tracker, err := learning.NewTracker(deps.repos, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating performance tracker: %w", err)
	}
	recognizer := learning.NewRecognizer(learning.RecognizerConfig{
		MinSampleSize: cfg.Learning.MinSampleSize,
		MinConfidence: cfg.Learning.MinConfidence,
		Saturation:    cfg.Learning.SampleSizeSaturation,
	}, logger)

	learningMgr, err := learning.NewManager(learning.ManagerConfig{
		RecentWindow: cfg.Learning.RecentWindow,
	}, learner, processor, tracker, recognizer, procedural, deps.repos, deps.repos, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating learning manager: %w", err)
	}

	return memoryMgr, learningMgr, nil
}
