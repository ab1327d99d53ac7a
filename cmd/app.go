package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/okaypadak/everup-backend/internal/application/config"
	"github.com/okaypadak/everup-backend/internal/application/constant"
	"github.com/okaypadak/everup-backend/internal/application/metric"
	"github.com/okaypadak/everup-backend/internal/infra/adapters/auth"
	"github.com/okaypadak/everup-backend/internal/infra/adapters/media"
	"github.com/okaypadak/everup-backend/internal/infra/adapters/memory"
	"github.com/okaypadak/everup-backend/internal/infra/ports/http/handlers"
	"github.com/okaypadak/everup-backend/internal/infra/ports/http/server"
	"github.com/okaypadak/everup-backend/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: slog.LevelInfo},
			),
		),
	)

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	slog.Info("Running app", slog.Bool("debug", cfg.Debug))

	engine := media.NewPionEngine(cfg)

	wsConnRepo := memory.NewWSConnectionRepository()
	roomUsecase := usecase.NewRoomUsecase(engine, wsConnRepo)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	iceHandler := handlers.NewIceHandler(cfg)
	voiceHandler := handlers.NewVoiceHandler(roomUsecase)
	wsHandler := handlers.NewWebSocketHandler(cfg, roomUsecase, wsConnRepo)

	echoSrv := server.New(verifier, iceHandler, voiceHandler, wsHandler)
	metricSrv := metric.NewServer()

	srvCh := make(chan error, 1)
	go func() {
		srvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		if err := metricSrv.Start(":" + cfg.Metrics.Port); err != nil {
			slog.Error("metrics server failed", slog.Any(constant.Error, err))
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server due to context cancel")
	case err = <-srvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)

		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown server", slog.Any(constant.Error, err))
	}

	if err := metricSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metrics server", slog.Any(constant.Error, err))
	}

	roomUsecase.Shutdown(timeoutCtx)

	if err := engine.Close(); err != nil {
		slog.Error("Failed to close media engine", slog.Any(constant.Error, err))
	}
}
