package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"supply-daddy-api-server/internal/api/routes"
	"supply-daddy-api-server/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the transit scheduler and the enrichment worker",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: log}
	defer a.close(context.Background())
	if err := a.build(ctx, prometheus.DefaultRegisterer); err != nil {
		logger.LogError(log, "main", "runServe", "failed to build server", nil, err)
		return err
	}
	if err := a.seed(ctx); err != nil {
		log.WithError(err).Warn("super admin not seeded")
	}

	router := routes.SetupRouter(routes.Deps{
		Engine:       a.engine,
		Shipments:    a.shipments,
		Admin:        a.admin,
		Users:        a.users,
		Auditor:      a.auditor,
		Tokens:       a.tokens,
		Hub:          a.hub,
		AllowOrigins: cfg.Server.AllowOrigins,
		Log:          log,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", cfg.Server.Port).Info("starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.worker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.LogError(log, "main", "runServe", "server stopped with error", nil, err)
		return err
	}
	log.Info("server stopped")
	return nil
}
