package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ssherman/greatlist/internal/api"
	"github.com/ssherman/greatlist/internal/catalog"
	"github.com/ssherman/greatlist/internal/config"
	"github.com/ssherman/greatlist/internal/database"
	"github.com/ssherman/greatlist/internal/event"
	"github.com/ssherman/greatlist/internal/importer"
	"github.com/ssherman/greatlist/internal/judge"
	"github.com/ssherman/greatlist/internal/list"
	"github.com/ssherman/greatlist/internal/logging"
	"github.com/ssherman/greatlist/internal/musicbrainz"
	"github.com/ssherman/greatlist/internal/parser"
	"github.com/ssherman/greatlist/internal/pipeline"
	"github.com/ssherman/greatlist/internal/resolver"
	"github.com/ssherman/greatlist/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	configPath := os.Getenv("GL_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Set up structured logging via the logging Manager
	logManager, logger := logging.NewManager(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.FilePath,
	})
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	// Open database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	// Run migrations
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	// Initialize services
	listService := list.NewService(db)
	catalogService := catalog.NewService(db)

	mbClient := newMusicBrainzClient(cfg, logger)
	res := resolver.New(catalogService, mbClient, cfg.Pipeline.LocalMatchThreshold, logger)
	imp := importer.New(catalogService, mbClient, logger)

	llmClient := judge.NewClient(cfg.Judge.BaseURL, cfg.Judge.APIKey, cfg.Judge.Model,
		time.Duration(cfg.Judge.TimeoutSeconds)*time.Second, logger)
	matchJudge := judge.New(llmClient, logger)

	// Initialize event bus with the activity log consumer
	eventBus := event.NewBus(logger, 256)
	event.LogActivity(eventBus, logger)
	go eventBus.Start()
	defer eventBus.Stop()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize the stage job runner
	runner := pipeline.NewRunner(listService, eventBus, logger,
		pipeline.NewParseStage(listService, parser.NewLineParser()),
		pipeline.NewEnrichStage(listService, catalogService, res, cfg.Pipeline.ProgressEvery, logger),
		pipeline.NewValidateStage(listService, matchJudge),
		pipeline.NewImportStage(listService, imp, cfg.Pipeline.ProgressEvery, logger),
	)
	runner.Start(ctx, cfg.Pipeline.Workers)

	logger.Info("starting greatlist",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	// Set up HTTP router
	router := api.NewRouter(api.RouterDeps{
		ListService: listService,
		Runner:      runner,
		Bus:         eventBus,
		Logger:      logger,
		BasePath:    cfg.Server.BasePath,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	runner.Wait()
	return nil
}

func newMusicBrainzClient(cfg *config.Config, logger *slog.Logger) *musicbrainz.Client {
	if cfg.MusicBrainz.BaseURL != "" {
		return musicbrainz.NewWithBaseURL(cfg.MusicBrainz.RequestsPerSecond, logger, cfg.MusicBrainz.BaseURL)
	}
	return musicbrainz.New(cfg.MusicBrainz.RequestsPerSecond, logger)
}
