package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tower/internal/events"
	"github.com/alfredjeanlab/tower/internal/stream"
)

var replayCmd = &cobra.Command{
	Use:               "replay <job-id>",
	Short:             "Publish a scripted pipeline run for a job onto NATS",
	GroupID:           "system",
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: skipClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]
		node, _ := cmd.Flags().GetString("node")
		every, _ := cmd.Flags().GetDuration("every")
		natsURL, _ := cmd.Flags().GetString("nats")

		if natsURL == "" {
			natsURL = os.Getenv("TOWER_NATS_URL")
		}
		if natsURL == "" {
			p, err := activeProfile(profileName)
			if err != nil {
				return err
			}
			natsURL = p.NATSURL
		}
		if natsURL == "" {
			return fmt.Errorf("no NATS URL: pass --nats, set TOWER_NATS_URL or add one to the profile")
		}

		pub, err := events.NewNATSPublisher(natsURL)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer pub.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if node == "" {
			node = jobID
		}
		n, err := events.Replay(ctx, pub, jobID, stream.Script(jobID, node), every)
		if err != nil {
			return fmt.Errorf("replay stopped after %d events: %w", n, err)
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pub.Flush(flushCtx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %d events to %s\n", n, events.JobSubjects(jobID))
		return nil
	},
}

func init() {
	replayCmd.Flags().String("node", "", "account id the run is about (default: the job id)")
	replayCmd.Flags().Duration("every", 500*time.Millisecond, "pause between stage events")
	replayCmd.Flags().String("nats", "", "NATS server URL")
}
