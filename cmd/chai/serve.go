// ABOUTME: chai serve subcommand
// ABOUTME: Loads config, prints the startup banner, and runs the gateway

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chaihq/chai/internal/config"
	"github.com/chaihq/chai/internal/gateway"
)

func serveCmd() *cobra.Command {
	var portFlag int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chai gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, portFlag)
		},
	}
	cmd.Flags().IntVar(&portFlag, "port", 0, "override the configured listen port")
	return cmd
}

func runServe(ctx context.Context, portOverride int) error {
	path := configPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if portOverride != 0 {
		cfg.Gateway.Port = portOverride
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("Listen:    %s:%d\n", cfg.Gateway.Bind, cfg.Gateway.Port)
	green.Print("    ▶ ")
	fmt.Printf("Auth:      %s\n", cfg.Gateway.Auth.Mode)
	green.Print("    ▶ ")
	fmt.Printf("Backend:   %s\n", cfg.DefaultBackend())

	if cfg.Gateway.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Gateway.Tailscale.Hostname)
		if cfg.Gateway.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting chai gateway",
		"config", path,
		"bind", cfg.Gateway.Bind,
		"port", cfg.Gateway.Port,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}
