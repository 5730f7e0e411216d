package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/database"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/handler"
	"github.com/proctorly/proctorly-backend/internal/logger"
	"github.com/proctorly/proctorly-backend/internal/monitor"
	"github.com/proctorly/proctorly-backend/internal/policy"
	"github.com/proctorly/proctorly-backend/internal/repository"
	"github.com/proctorly/proctorly-backend/internal/router"
	"github.com/proctorly/proctorly-backend/internal/service"
	"github.com/proctorly/proctorly-backend/internal/session"
	"github.com/proctorly/proctorly-backend/internal/validator"
	"github.com/proctorly/proctorly-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Proctorly Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Document Store ────────────────────────────────────────────────
	// Redis is the live store. When MirrorDir is set, every write is
	// shadowed to a JSON mirror on disk and reads fall back to it when
	// Redis is unreachable.
	var store docstore.Store = docstore.NewRedisStore(rdb, log)
	if cfg.MirrorDir != "" {
		mirror, err := docstore.NewFileStore(cfg.MirrorDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.MirrorDir).Msg("Failed to open mirror directory")
		}
		store = docstore.NewFallback(store, mirror, log)
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, store)
	userService := service.NewUserService(store, log)
	settingService := service.NewSettingService(store, log)
	questionService := service.NewQuestionService(store, log)
	resultService := service.NewResultService(store, rdb, log)

	pol := policy.New(store, rdb, cfg, log)
	manager := session.NewManager(store, pol, resultService, settingService, questionService, session.DefaultConfig(), log)
	mon := monitor.New(store, pol, cfg.StaleAfter, log)
	lockEventRepo := repository.NewLockEventRepository(pool)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:     handler.NewAuthHandler(authService, userService),
		Exam:     handler.NewExamHandler(manager),
		WS:       handler.NewWSHandler(manager, log, cfg.AllowedOrigins),
		Monitor:  handler.NewMonitorHandler(mon, authService, lockEventRepo),
		Question: handler.NewQuestionHandler(questionService),
		Setting:  handler.NewSettingHandler(settingService),
		Result:   handler.NewResultHandler(resultService),
		User:     handler.NewUserHandler(userService),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	lockEventWorker := worker.NewLockEventWorker(pool, rdb, log)
	archiveWorker := worker.NewResultArchiveWorker(pool, rdb, log)

	go lockEventWorker.Start(workerCtx)
	go archiveWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Persist every live exam session so candidates can resume.
	manager.Shutdown(shutdownCtx)

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
