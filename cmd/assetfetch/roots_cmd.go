package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jxwalker/assetfetch/internal/config"
	"github.com/jxwalker/assetfetch/internal/downloader"
)

func newRootsCmd(g *globalFlags) *cobra.Command {
	var (
		jsonOut bool
		create  bool
	)
	cmd := &cobra.Command{
		Use:   "roots",
		Short: "List the named download roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			roots := c.Roots.Map()
			if create {
				for _, name := range config.RootNames {
					if err := os.MkdirAll(roots[name], 0o755); err != nil {
						return fmt.Errorf("create root %s: %w", name, err)
					}
				}
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(roots)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, name := range config.RootNames {
				mark := ""
				if name == c.General.DefaultRoot {
					mark = " (default)"
				}
				exists := "missing"
				if fi, err := os.Stat(roots[name]); err == nil && fi.IsDir() {
					exists = "ok"
				}
				fmt.Fprintf(tw, "%s%s\t%s\t%s\n", name, mark, roots[name], exists)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print name -> path as JSON")
	cmd.Flags().BoolVar(&create, "create", false, "Create missing root directories")
	return cmd
}

func newCleanCmd(g *globalFlags) *cobra.Command {
	var (
		olderThan time.Duration
		dryRun    bool
		vacuum    bool
	)
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove staging files left behind by interrupted downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			log := newLogger(g, c)
			out := cmd.OutOrStdout()
			total := 0
			for _, name := range config.RootNames {
				dir, _ := c.Roots.RootFor(name)
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					continue
				}
				removed, err := downloader.CleanStaged(dir, olderThan, dryRun)
				if err != nil {
					log.Errorf("clean %s: %v", dir, err)
				}
				for _, p := range removed {
					fmt.Fprintln(out, p)
				}
				total += len(removed)
			}
			verb := "removed"
			if dryRun {
				verb = "would remove"
			}
			fmt.Fprintf(out, "%s %d staging files\n", verb, total)
			if vacuum && !dryRun {
				_, _, st, err := openState(g)
				if err != nil {
					return err
				}
				defer st.Close()
				return st.Vacuum()
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.DurationVar(&olderThan, "older-than", 24*time.Hour, "Only remove files untouched for this long")
	f.BoolVar(&dryRun, "dry-run", false, "List files without removing them")
	f.BoolVar(&vacuum, "vacuum", false, "Also compact the state database")
	return cmd
}
