package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/config"
	"github.com/ujianku/ujianku-backend/internal/database"
	"github.com/ujianku/ujianku-backend/internal/handler"
	"github.com/ujianku/ujianku-backend/internal/logger"
	"github.com/ujianku/ujianku-backend/internal/repository"
	"github.com/ujianku/ujianku-backend/internal/router"
	"github.com/ujianku/ujianku-backend/internal/service"
	"github.com/ujianku/ujianku-backend/internal/validator"
	"github.com/ujianku/ujianku-backend/internal/worker"
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
		Msg("Starting Ujianku Backend")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	guruRepo := repository.NewGuruRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	sessionCache := service.NewRedisSessionCache(rdb)
	authService := service.NewAuthService(cfg, rdb)
	guruService := service.NewGuruService(guruRepo)
	studentService := service.NewStudentService(studentRepo, log)
	examService := service.NewExamService(cfg, examRepo, sessionRepo, sessionCache, log)
	sessionService := service.NewExamSessionService(sessionRepo, examService, sessionCache, service.DeadlinePolicy{
		RejectLate: cfg.RejectLateSubmit,
		Grace:      cfg.LateSubmitGrace,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(authService, examService, studentService, guruService),
		StudentExam: handler.NewStudentExamHandler(sessionService, examService),
		StudentMgmt: handler.NewStudentManagementHandler(studentService, authService),
		Exam:        handler.NewExamHandler(examService),
		WS:          handler.NewWSHandler(rdb, examService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	deadlineWorker := worker.NewDeadlineWorker(sessionRepo, sessionService, sessionCache, cfg.DeadlineSweepInterval, cfg.LateSubmitGrace, log)
	go deadlineWorker.Start(workerCtx)

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

	// 2. Stop the deadline worker and give its final sweep a moment.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
