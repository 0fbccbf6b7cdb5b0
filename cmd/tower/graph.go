package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/ui"
)

var graphCmd = &cobra.Command{
	Use:     "graph",
	Short:   "Show the accounts in the current graph view",
	GroupID: "graph",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		v, err := consoleClient.GraphView(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(v)
			return nil
		}
		printView(os.Stdout, v, limit)
		return nil
	},
}

var graphReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Fetch a fresh graph snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := consoleClient.ReloadGraph(context.Background())
		if err != nil {
			return err
		}
		return printGraphStats(s)
	},
}

var graphFilterCmd = &cobra.Command{
	Use:       "filter <fraud|all>",
	Short:     "Show only anomalous accounts, or all of them",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"fraud", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var on bool
		switch args[0] {
		case "fraud", "on":
			on = true
		case "all", "off":
		default:
			return fmt.Errorf("unknown filter %q (must be fraud or all)", args[0])
		}
		s, err := consoleClient.SetFraudOnly(context.Background(), on)
		if err != nil {
			return err
		}
		return printGraphStats(s)
	},
}

var graphZoomCmd = &cobra.Command{
	Use:       "zoom <in|out>",
	Short:     "Move the camera one step in or out",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"in", "out"},
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := 0
		switch args[0] {
		case "in", "+":
			dir = 1
		case "out", "-":
			dir = -1
		default:
			return fmt.Errorf("unknown direction %q (must be in or out)", args[0])
		}
		pose, err := consoleClient.Zoom(context.Background(), dir)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(pose)
			return nil
		}
		fmt.Printf("camera distance %.0f\n", pose.Distance())
		return nil
	},
}

var graphSelectCmd = &cobra.Command{
	Use:   "select <account>",
	Short: "Select an account and fly the camera to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := consoleClient.Click(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printSelected(s)
	},
}

var searchCmd = &cobra.Command{
	Use:     "search <account>",
	Short:   "Find an account in the current view and focus it",
	GroupID: "graph",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := consoleClient.Search(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printSelected(s)
	},
}

func printGraphStats(s *model.Session) error {
	if jsonOutput {
		printJSON(s.Graph)
		return nil
	}
	filter := "all accounts"
	if s.FraudOnly {
		filter = "fraud only"
	}
	fmt.Printf("%d nodes, %d links, %d anomalous (%s)\n", s.Graph.Nodes, s.Graph.Links, s.Graph.Anomalous, filter)
	return nil
}

func printSelected(s *model.Session) error {
	if jsonOutput {
		printJSON(s.Selected)
		return nil
	}
	a := s.Selected
	if a == nil {
		return nil
	}
	status := ui.RenderNormal("normal")
	if a.Anomalous {
		status = ui.RenderFraud("fraud")
	}
	fmt.Printf("%s  score %.2f  %s\n", ui.RenderAccount(a), a.AnomalyScore, status)
	return nil
}

func init() {
	graphCmd.Flags().Int("limit", 25, "maximum accounts to list (0 = all)")

	graphCmd.AddCommand(graphReloadCmd)
	graphCmd.AddCommand(graphFilterCmd)
	graphCmd.AddCommand(graphZoomCmd)
	graphCmd.AddCommand(graphSelectCmd)
}
