package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/catalog"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/logging"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/persist"
	"github.com/mind-engage/mindengage-quiz/internal/selection"
	"github.com/mind-engage/mindengage-quiz/internal/session"
	"github.com/mind-engage/mindengage-quiz/internal/source"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(logging.Options{
		Debug: cfg.Mode == config.ModeDebug,
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	os.Exit(exitCode(logger, run(cfg, logger)))
}

// exitCode logs a fatal run error and flushes the logger before the process exits.
func exitCode(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("quizd stopped", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(cfg config.Config, logger *zap.Logger) error {
	metrics.Init()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// --- Question data ---
	opener, err := dataOpener(cfg)
	if err != nil {
		return err
	}
	cat, err := catalog.Load(ctx, opener, catalog.DefaultPaths())
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	repo := source.NewFileRepository(opener, logger.Named("source"))

	// --- Persistence ---
	kv, err := openKV(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()
	gw := persist.NewGateway(kv,
		persist.WithHistoryLimit(cfg.HistoryLimit),
		persist.WithLogger(logger.Named("persist")))

	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	api.Mount(r, api.Deps{
		Catalog:   cat,
		Resolver:  selection.NewResolver(repo, cat, selection.WithLogger(logger.Named("selection"))),
		Machine:   session.NewMachine(gw, session.WithLogger(logger.Named("session"))),
		Gateway:   gw,
		Blobs:     blobs,
		BlockSize: cfg.BlockSize,
		Log:       logger.Named("api"),
	})
	r.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		_ = server.Shutdown(sctx)
	}()

	logger.Info("listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("mode", string(cfg.Mode)),
		zap.String("kv", string(cfg.KVDriver)),
		zap.Int("laws", len(cat.Laws)),
		zap.Int("topics", len(cat.Topics)),
		zap.Int("exams", len(cat.Exams)))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func dataOpener(cfg config.Config) (source.Opener, error) {
	if cfg.DataBaseURL != "" {
		return source.NewHTTPOpener(cfg.DataBaseURL, cfg.FetchTimeout)
	}
	fs, err := storage.NewFSStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	return source.BlobOpener{Store: fs}, nil
}

func openKV(ctx context.Context, cfg config.Config) (persist.KV, error) {
	switch cfg.KVDriver {
	case config.KVMemory:
		return persist.NewMemoryKV(), nil
	case config.KVRedis:
		return persist.OpenRedisKV(ctx, cfg.RedisURL, cfg.KeyPrefix)
	default:
		drv, err := db.ParseDriver(string(cfg.KVDriver))
		if err != nil {
			return nil, err
		}
		kv, err := persist.OpenSQLKV(ctx, drv, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		return kv, nil
	}
}
