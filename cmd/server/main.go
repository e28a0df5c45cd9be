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
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/songline-backend/internal/config"
	"github.com/DoyleJ11/songline-backend/internal/httpapi"
	"github.com/DoyleJ11/songline-backend/internal/hub"
	"github.com/DoyleJ11/songline-backend/internal/reaper"
	"github.com/DoyleJ11/songline-backend/internal/session"
	"github.com/DoyleJ11/songline-backend/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// a missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:           "songline-server",
		Short:         "Realtime room server for the songline music timeline game.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.BindFlags(cmd, cfg)
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing store", zap.Error(err))
		}
	}()

	clock := clockwork.NewRealClock()
	h := hub.New(hub.Options{Index: session.NewIndex(), Store: st, Logger: logger, Clock: clock})
	h.Start(ctx)

	rp := reaper.New(h, cfg.Reaper(), clock, logger)
	rp.Start(ctx)

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.SetupRoutes(h, httpapi.Options{
			Logger:      logger,
			PublicURL:   cfg.PublicURL,
			CORSOrigins: cfg.CORSOrigins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if rerr := rp.Stop(); rerr != nil {
			logger.Warn("stopping reaper", zap.Error(rerr))
		}
		h.Stop()
		return err
	})

	return g.Wait()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return store.NewPostgres(cfg.DatabaseURL)
	case config.StoreRedis:
		return store.NewRedis(ctx, cfg.RedisURL, cfg.RedisTTL)
	default:
		return store.NewMemory(), nil
	}
}
