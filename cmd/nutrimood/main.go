// cmd/nutrimood/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"nutrimood/internal/apperr"
	"nutrimood/internal/catalog"
	"nutrimood/internal/chat"
	"nutrimood/internal/config"
	"nutrimood/internal/formatter"
	"nutrimood/internal/gateway"
	"nutrimood/internal/llm"
	"nutrimood/internal/matching"
	"nutrimood/internal/observability"
	"nutrimood/internal/server"
	"nutrimood/internal/session"
	"nutrimood/internal/storage"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to YAML config file (defaults apply when missing)")
	port       = flag.Int("port", 8000, "Port for HTTP transport")
	host       = flag.String("host", "0.0.0.0", "Host address")
	address    = flag.String("address", "", "Address (alias for host)")
	dbPath     = flag.String("db-path", "", "SQLite database path (selects the sqlite session backend)")
	dataPath   = flag.String("data", "", "Catalog location: JSON file path or s3://bucket/key")
	version    = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("nutrimood version %s\n", gateway.ServerVersion)
		os.Exit(0)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := observability.Init(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialise logger: %v", err)
	}

	// run returns instead of exiting so its deferred closes always happen.
	if err := run(cfg, logger); err != nil {
		logger.Error("nutrimood stopped", zap.Error(err))
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}

func run(cfg *config.AppConfig, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := catalog.OpenSource(ctx, cfg.Catalog.Location, catalog.S3Options{
		Region:    cfg.Catalog.S3Region,
		Endpoint:  cfg.Catalog.S3Endpoint,
		AccessKey: cfg.Catalog.S3AccessKey,
		SecretKey: cfg.Catalog.S3SecretKey,
	})
	if err != nil {
		return fmt.Errorf("failed to open catalog source: %w", err)
	}
	catalogs := catalog.NewStore(src)
	if _, err := catalogs.Reload(ctx); err != nil {
		if errors.Is(err, apperr.ErrDataLoad) {
			return fmt.Errorf("catalog could not be loaded from %s: %w", cfg.Catalog.Location, err)
		}
		return fmt.Errorf("catalog load failed: %w", err)
	}

	var (
		sessions    session.Store
		sqliteStore *storage.SQLiteStorage
		recorder    chat.Recorder
		analytics   server.Analytics
	)
	switch cfg.Session.Backend {
	case "sqlite":
		sqliteStore, err = storage.NewSQLiteStorage(cfg.Session.DBPath, cfg.Session.MaxHistory)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer sqliteStore.Close()
		sessions = sqliteStore
	default:
		sessions = session.NewMemoryStore(cfg.Session.MaxHistory)
	}

	switch cfg.Analytics.Backend {
	case "sqlite":
		recorder = sqliteStore
		analytics = sqliteStore
	case "postgres":
		pg, err := storage.NewPostgresRecorder(ctx, cfg.Analytics.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect analytics database: %w", err)
		}
		defer pg.Close()
		recorder = pg
		analytics = pg
	}

	generator, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create %s generative backend: %w", cfg.LLM.Provider, err)
	}

	engine := matching.NewEngine(cfg.Matching.Weights)
	chatService := chat.NewService(catalogs, engine, formatter.New(cfg.Formatter.MaxChars), sessions, generator, recorder,
		chat.Options{TopK: cfg.Matching.TopK, HistoryLimit: cfg.Session.HistoryLimit})

	srv := server.NewNutriMoodServer(&server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DefaultTopK:    cfg.Matching.TopK,
	}, server.Deps{
		Catalogs:  catalogs,
		Engine:    engine,
		Chat:      chatService,
		Sessions:  sessions,
		Gateway:   gateway.New(catalogs, engine, cfg.Matching.TopK),
		Analytics: analytics,
		Backend:   generator.Name(),
	})

	go sweepSessions(ctx, sessions, cfg.IdleTTL(), cfg.SweepInterval())

	// Handle shutdown and reload signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	logger.Info("nutrimood ready",
		zap.String("backend", generator.Name()),
		zap.String("sessions", cfg.Session.Backend),
		zap.String("analytics", cfg.Analytics.Backend))

	var serveErr error
wait:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloadCatalog(ctx, catalogs)
				continue
			}
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			break wait
		case err := <-errCh:
			serveErr = fmt.Errorf("server error: %w", err)
			break wait
		}
	}

	logger.Info("shutting down")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	return serveErr
}

// reloadCatalog answers SIGHUP. A failed reload keeps serving the previous
// snapshot.
func reloadCatalog(ctx context.Context, catalogs *catalog.Store) {
	cat, err := catalogs.Reload(ctx)
	if err != nil {
		observability.L().Warn("catalog reload failed, keeping previous snapshot", zap.Error(err))
		return
	}
	observability.L().Info("catalog reloaded", zap.Int("items", cat.Len()))
}

// applyFlags lets explicitly set command-line flags win over file and environment.
func applyFlags(cfg *config.AppConfig) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "host":
			cfg.Server.Host = *host
		case "db-path":
			cfg.Session.Backend = "sqlite"
			cfg.Session.DBPath = *dbPath
		case "data":
			cfg.Catalog.Location = *dataPath
		}
	})
	if *address != "" {
		cfg.Server.Host = *address
	}
}

func sweepSessions(ctx context.Context, sessions session.Store, maxIdle, every time.Duration) {
	if maxIdle <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Sweep(ctx, maxIdle)
			if err != nil {
				observability.L().Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				observability.L().Info("swept idle sessions", zap.Int("removed", n))
			}
		}
	}
}
