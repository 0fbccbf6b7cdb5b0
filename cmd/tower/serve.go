package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/tower/internal/config"
	"github.com/alfredjeanlab/tower/internal/server"
)

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Run the console and serve it over HTTP",
	GroupID:           "system",
	PersistentPreRunE: skipClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		consoleServer := server.NewConsoleServer(logger)
		lc, err := buildConsole(ctx, cfg, logger, consoleServer.Publisher)
		if err != nil {
			return err
		}
		defer lc.Close(logger)
		consoleServer.Bind(lc.ctrl)

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           consoleServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "auth", cfg.AuthToken != "")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			lc.ctrl.RefreshGraph(gctx, cfg.GraphRefresh)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", "err", err)
			}
			logger.Info("HTTP server stopped")
			return nil
		})

		logger.Info("tower server started",
			"http_addr", cfg.HTTPAddr,
			"transaction_url", cfg.TransactionURL,
			"graph_refresh", cfg.GraphRefresh,
		)
		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	},
}
