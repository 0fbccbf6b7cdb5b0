package main

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tower/internal/config"
	"github.com/alfredjeanlab/tower/internal/investigation"
	"github.com/alfredjeanlab/tower/internal/stream"
	"github.com/alfredjeanlab/tower/internal/tui"
)

var consoleCmd = &cobra.Command{
	Use:               "console",
	Short:             "Run the investigation console in the terminal",
	GroupID:           "system",
	PersistentPreRunE: skipClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		demo, _ := cmd.Flags().GetBool("demo")
		every, _ := cmd.Flags().GetDuration("every")
		logFile, _ := cmd.Flags().GetString("log-file")

		// The terminal belongs to the console; logs go to a file or nowhere.
		var logOut io.Writer = io.Discard
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return err
			}
			defer f.Close()
			logOut = f
		}
		logger := slog.New(slog.NewTextHandler(logOut, nil))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if demo {
			feed := stream.NewFeed()
			sub := newDemoSubmitter(ctx, feed, every)
			defer sub.Close()
			ctrl := investigation.New(investigation.Options{
				Submitter: sub,
				Stream:    feed,
				Graph:     demoSource(),
				Logger:    logger,
			})
			defer ctrl.Close()
			return tui.Run(ctx, ctrl)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		lc, err := buildConsole(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer lc.Close(logger)
		if cfg.GraphRefresh > 0 {
			// The console loads the graph itself on start.
			go func() {
				select {
				case <-time.After(cfg.GraphRefresh):
					lc.ctrl.RefreshGraph(ctx, cfg.GraphRefresh)
				case <-ctx.Done():
				}
			}()
		}
		return tui.Run(ctx, lc.ctrl)
	},
}

func init() {
	consoleCmd.Flags().Bool("demo", false, "run against a generated graph and a scripted pipeline")
	consoleCmd.Flags().Duration("every", 700*time.Millisecond, "pause between scripted stage events in demo mode")
	consoleCmd.Flags().String("log-file", "", "append logs to this file")
}
