package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tower/internal/client"
	"github.com/alfredjeanlab/tower/internal/ui"
)

var (
	serverURL   string
	authToken   string
	profileName string
	jsonOutput  bool

	consoleClient client.ConsoleClient
)

func defaultServerURL() string {
	if s := os.Getenv("TOWER_SERVER_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

var rootCmd = &cobra.Command{
	Use:   "tower <command>",
	Short: "Fraud investigation console",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		p, err := activeProfile(profileName)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("url") && os.Getenv("TOWER_SERVER_URL") == "" && p.URL != "" {
			serverURL = p.URL
		}
		if authToken == "" {
			authToken = p.Token
		}
		consoleClient = client.NewHTTPClient(serverURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if consoleClient != nil {
			consoleClient.Close()
		}
	},
	SilenceUsage: true,
}

// skipClient is used by commands that run the console in-process or only
// touch local files.
func skipClient(cmd *cobra.Command, args []string) error { return nil }

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "tower server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("TOWER_AUTH_TOKEN"), "bearer token for the tower server")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "named profile to use instead of the active one")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "investigate", Title: "Investigation:"},
		&cobra.Group{ID: "graph", Title: "Graph:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Investigation
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tabCmd)

	// Graph
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(searchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(profileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
