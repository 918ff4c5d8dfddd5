package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"

	"github.com/geopulse/geopulse/internal/server"
)

const (
	httpShutdownTimeout = 10 * time.Second
	hubShutdownTimeout  = 5 * time.Second
)

func main() {
	slog.SetDefault(slog.New(
		tint.NewHandler(
			colorable.NewColorable(os.Stderr),
			&tint.Options{
				Level:      slog.LevelInfo,
				TimeFormat: time.TimeOnly,
			},
		),
	))

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)

	registry := server.NewRegistry(clockwork.NewRealClock())
	hub := server.NewHub(registry)
	go hub.Run()

	mux := server.SetupRoutes(hub, registry)
	httpServer := server.CreateServer(cfg.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}

	case sig := <-stop:
		slog.Info("received signal, shutting down", "signal", sig.String())
		_ = server.ShutdownServer(httpServer, httpShutdownTimeout)
		if err := hub.Shutdown(hubShutdownTimeout); err != nil {
			slog.Warn("hub shutdown incomplete", "error", err)
		}
	}
}
