// ABOUTME: chai health subcommand
// ABOUTME: Probes the running gateway's HTTP health endpoint

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/chaihq/chai/internal/config"
)

func healthCmd() *cobra.Command {
	var urlFlag string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), urlFlag)
		},
	}
	cmd.Flags().StringVar(&urlFlag, "url", "", "health endpoint URL (default: derived from config)")
	return cmd
}

func runHealth(ctx context.Context, url string) error {
	if url == "" {
		cfg, err := config.Load(configPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		host := cfg.Gateway.Bind
		if !config.IsLoopback(host) {
			// The gateway may bind a tailnet or wildcard address; probe locally.
			host = "127.0.0.1"
		}
		url = fmt.Sprintf("http://%s:%d/", host, cfg.Gateway.Port)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
