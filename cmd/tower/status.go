package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tower/internal/model"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the current investigation",
	GroupID: "investigate",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := consoleClient.Session(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(s)
			return nil
		}
		printSession(os.Stdout, s)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check that the tower server is up",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := consoleClient.Health(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]string{"status": status, "url": serverURL})
			return nil
		}
		cmd.Printf("%s: %s\n", serverURL, status)
		return nil
	},
}

var tabCmd = &cobra.Command{
	Use:       "tab <unsupervised|ja3|supervised>",
	Short:     "Switch the investigation tab",
	GroupID:   "investigate",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"unsupervised", "ja3", "supervised"},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := consoleClient.SetTab(context.Background(), model.Tab(args[0]))
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(s)
			return nil
		}
		cmd.Printf("tab: %s\n", s.Tab.Label())
		if !s.Tab.Enabled() {
			cmd.Println("this analysis is not enabled yet")
		}
		return nil
	},
}
