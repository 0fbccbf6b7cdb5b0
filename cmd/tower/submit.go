package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tower/internal/model"
)

var submitCmd = &cobra.Command{
	Use:     "submit <source> <target> <amount>",
	Short:   "Submit a transaction and start an investigation",
	GroupID: "investigate",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		form := model.TransactionForm{Source: args[0], Target: args[1], Amount: args[2]}

		s, err := consoleClient.Submit(context.Background(), form)
		if err != nil {
			return fmt.Errorf("submitting transaction: %w", err)
		}
		if !watch {
			if jsonOutput {
				printJSON(s)
			} else {
				printSession(os.Stdout, s)
			}
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if !jsonOutput {
			fmt.Printf("investigating %s as job %s\n", s.NodeID, s.JobID)
		}
		return followRun(ctx, s.JobID)
	},
}

func init() {
	submitCmd.Flags().BoolP("watch", "w", false, "follow the pipeline until the run finishes")
}
