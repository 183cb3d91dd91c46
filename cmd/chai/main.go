// ABOUTME: Entry point for the chai gateway CLI
// ABOUTME: Subcommands for serving, first-run setup, and health checks

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaihq/chai/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _           _
   ___ | |__   __ _(_)
  / __|| '_ \ / _' | |
 | (__ | | | | (_| | |
  \___||_| |_|\__,_|_|
`

var configFlag string

func main() {
	root := &cobra.Command{
		Use:   "chai",
		Short: "chai — local-first multi-agent gateway",
		Long:  "Routes chat channels to local LLM backends with skills and tool calls.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "config file path (default: CHAI_CONFIG_PATH or ~/.chai/config.json)")

	root.AddCommand(
		serveCmd(),
		initCmd(),
		healthCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configPath resolves the --config flag, falling back to the default
// lookup chain.
func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	return config.DefaultPath()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the chai version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
