// ABOUTME: chai init subcommand for first-run setup
// ABOUTME: Seeds the config dir, workspace template, and bundled skills

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chaihq/chai/internal/assets"
	"github.com/chaihq/chai/internal/config"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the chai config directory and seed defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	path := configPath()
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Seed an empty config so every field starts from its default. Existing
	// configs are left alone.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
		green.Printf("  ✓ Created config: %s\n", path)
	} else if err != nil {
		return fmt.Errorf("checking config file: %w", err)
	} else {
		gray.Printf("  Config exists: %s\n", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	workspace := cfg.WorkspaceDir()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}
	agentsPath := filepath.Join(workspace, "AGENTS.md")
	if _, err := os.Stat(agentsPath); os.IsNotExist(err) {
		if err := os.WriteFile(agentsPath, assets.DefaultAgentContext(), 0o644); err != nil {
			return fmt.Errorf("writing AGENTS.md: %w", err)
		}
		green.Printf("  ✓ Created workspace: %s\n", workspace)
	} else if err != nil {
		return fmt.Errorf("checking AGENTS.md: %w", err)
	} else {
		gray.Printf("  Workspace exists: %s\n", workspace)
	}

	// Bundled skills are gateway-owned and refreshed on every init so
	// upgrades pick up new tool definitions. User skills live in the
	// workspace or extra dirs and are never touched.
	skillsDir := cfg.SkillsDir()
	if err := assets.ExtractBundledSkills(skillsDir); err != nil {
		return fmt.Errorf("extracting bundled skills: %w", err)
	}
	green.Printf("  ✓ Bundled skills: %s\n", skillsDir)

	fmt.Println()
	fmt.Println("To start the gateway:")
	fmt.Println("  chai serve")

	return nil
}
