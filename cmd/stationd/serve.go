package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"waste-station-backend/internal/api"
	"waste-station-backend/internal/metrics"
	"waste-station-backend/internal/seed"
)

func serveCommand(setup func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	metrics.RegisterDBGauges(reg, a.db, a.log)

	if err := a.buildService(m); err != nil {
		return err
	}

	if a.cfg.Seed.OnStart {
		if _, err := seed.Run(ctx, a.svc, a.cfg.Seed.Stations, a.log); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.NewHandler(a.svc, a.ledger, a.log), api.RouterOptions{
		RateLimitPerSec: a.cfg.Server.RateLimitPerSec,
		RateLimitBurst:  a.cfg.Server.RateLimitBurst,
		CacheTTL:        a.cfg.Server.CacheTTL,
		Logger:          a.log,
		Metrics:         m,
		Gatherer:        reg,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server starting", zap.Int("port", a.cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		a.log.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	a.log.Info("server gracefully stopped")
	return nil
}
