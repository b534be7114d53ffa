package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/livepoll/internal/adapters/http"
	signaling "github.com/dkeye/livepoll/internal/adapters/signal"
	"github.com/dkeye/livepoll/internal/app"
	"github.com/dkeye/livepoll/internal/app/orch"
	"github.com/dkeye/livepoll/internal/config"
	"github.com/dkeye/livepoll/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("livepoll stopped")
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger first so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	rooms, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open room store: %w", err)
	}
	defer func() {
		if err := rooms.Close(); err != nil {
			log.Error().Err(err).Msg("close room store")
		}
	}()

	reg := app.NewRegistry()
	gateway := app.NewBroadcaster(reg, app.SimplePolicy{})
	coordinator := orch.New(reg, rooms, gateway, orch.Settings{
		CodeLength:   cfg.Room.CodeLength,
		CodeAttempts: cfg.Room.CodeAttempts,
		RequireHost:  cfg.Poll.RequireHost,
	})
	if cfg.Store.ReapOnStart {
		n, err := coordinator.ReapOrphans(ctx)
		if err != nil {
			return fmt.Errorf("reap stored rooms: %w", err)
		}
		if n > 0 {
			log.Info().Int("rooms", n).Msg("removed rooms left by a previous run")
		}
	} else if n, err := coordinator.OpenRooms(ctx); err != nil {
		log.Warn().Err(err).Msg("count stored rooms")
	} else {
		log.Info().Int("rooms", n).Msg("shared rooms in store")
	}

	ctrl := signaling.NewSignalWSController(coordinator, cfg)
	r := router.SetupRouter(ctx, cfg, rooms, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("LivePoll server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Open connections still run their disconnect cleanup against the store.
	cancel()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	if derr := ctrl.Drain(drainCtx); derr != nil {
		log.Warn().Err(derr).Msg("connections still open at shutdown")
	}

	if err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
