package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	oauth "github.com/keyper-oauth/keyper"
	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/internal/config"
	"github.com/keyper-oauth/keyper/storage"
	"github.com/keyper-oauth/keyper/storage/factory"
)

const (
	shutdownTimeout      = 15 * time.Second
	serverRequestTimeout = 10 * time.Second
	serverReadTimeout    = 10 * time.Second
	serverWriteTimeout   = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout    = 60 * time.Second
)

// newServeCmd creates the serve command for starting the authorization server
func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: `Start the authorization server.

Configuration is read from the --config file, KEYPER_* environment variables
and flags, in increasing order of precedence. For example KEYPER_STORAGE_DRIVER
sets storage.driver.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Debug)
			return runServe(cmd.Context(), cfg, logger)
		},
	}
	addServerFlags(cmd)
	return cmd
}

// app bundles the components built from a configuration
type app struct {
	server  *oauth.Server
	handler *oauth.Handler
	store   *factory.Store
	inst    *instrumentation.Instrumentation
}

// close releases the store and flushes telemetry
func (a *app) close(logger *slog.Logger) {
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close store", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.inst.Shutdown(ctx); err != nil {
		logger.Warn("Failed to shut down instrumentation", "error", err)
	}
}

// newApp builds instrumentation, storage, server and handler from cfg
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	inst, err := instrumentation.New(cfg.Instrumentation(Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}

	store, err := factory.New(cfg.StorageFactory(), factory.Dependencies{}, logger)
	if err != nil {
		_ = inst.Shutdown(ctx)
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	a := &app{store: store, inst: inst}

	if cfg.ClientsFile != "" {
		clients, err := storage.LoadClientsFile(cfg.ClientsFile)
		if err != nil {
			a.close(logger)
			return nil, err
		}
		if err := storage.ImportClients(ctx, store, clients); err != nil {
			a.close(logger)
			return nil, err
		}
		logger.Info("Loaded clients", "count", len(clients), "file", cfg.ClientsFile)
	} else {
		logger.Warn("No clients file configured, every authorization request will be rejected")
	}

	a.server, err = oauth.NewServer(store, store, cfg.OAuth(logger, inst))
	if err != nil {
		a.close(logger)
		return nil, err
	}
	a.handler = oauth.NewHandler(a.server, logger)
	return a, nil
}

// newRouter wraps the handler's routes in the server middleware chain
func newRouter(handler *oauth.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(serverRequestTimeout),
		requestLogger(logger),
	)
	r.Mount("/", handler.Routes())
	return r
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(a.handler, logger),
		ReadHeaderTimeout: serverReadTimeout,
		ReadTimeout:       serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	var metricsServer *http.Server
	if h := a.inst.MetricsHandler(); h != nil && cfg.Telemetry.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", h)
		metricsServer = &http.Server{
			Addr:              cfg.Telemetry.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: serverReadTimeout,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Authorization server listening",
			"addr", httpServer.Addr,
			"issuer", cfg.Issuer,
			"store", a.store.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("authorization server failed: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("Metrics server listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}

	// The memory store runs its own purge loop
	if a.store.Driver != factory.DriverMemory {
		g.Go(func() error {
			return a.server.RunCleanup(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		if metricsServer != nil {
			err = errors.Join(err, metricsServer.Shutdown(shutdownCtx))
		}
		if err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		logger.Info("Server shutdown complete")
		return nil
	})

	return g.Wait()
}
