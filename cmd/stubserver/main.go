package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmplabs/examsim/internal/config"
	"github.com/pmplabs/examsim/internal/logger"
	"github.com/pmplabs/examsim/internal/stubserver"
	"github.com/pmplabs/examsim/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Msg("Starting exam stub server")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	// ─── Load Question Bank ────────────────────────────────────────────
	bank, err := stubserver.LoadBank(cfg.QuestionBank)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load question bank")
	}
	log.Info().Int("questions", bank.Size()).Msg("Question bank loaded")

	// ─── Setup Router ──────────────────────────────────────────────────
	issuer := stubserver.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	handler := stubserver.NewHandler(bank, issuer, log)
	r := stubserver.SetupRouter(handler, issuer, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
