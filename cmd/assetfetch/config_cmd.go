package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jxwalker/assetfetch/internal/config"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}
	cmd.AddCommand(newConfigValidateCmd(g), newConfigPrintCmd(g), newConfigInitCmd())
	return cmd
}

func newConfigValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the config and report problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, p, err := loadConfig(g)
			if err != nil {
				return err
			}
			if err := c.ValidateWithFriendlyErrors(); err != nil {
				return err
			}
			if p == "" {
				p = "built-in defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %s\n", p)
			return nil
		},
	}
}

func newConfigPrintCmd(g *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective config with roots and defaults filled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(c)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			default:
				return fmt.Errorf("--format %q: want yaml or json", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml|json")
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		out   string
		base  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config with a models/input/temp/output layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if base == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				base = wd
			}
			abs, err := filepath.Abs(base)
			if err != nil {
				return err
			}
			c := config.Default(abs)
			c.Concurrency = config.Concurrency{GlobalFiles: 1, ChunkSizeMB: 1, MaxRetries: 3, Backoff: config.Backoff{MinMS: 500, MaxMS: 30000, Jitter: true}}
			c.Logging = config.Logging{Level: "info", Format: "human"}
			b, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			if out == "" {
				_, err := cmd.OutOrStdout().Write(b)
				return err
			}
			if _, err := os.Stat(out); err == nil && !force {
				return errors.New(out + " already exists (use --force to overwrite)")
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config to %s\n", out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&out, "out", "", "Write YAML to this path instead of stdout")
	f.StringVar(&base, "base", "", "Directory holding the roots (default: working directory)")
	f.BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
