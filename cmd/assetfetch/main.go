package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jxwalker/assetfetch/internal/downloader"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	jsonLogs   bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "assetfetch",
		Short:         "Fetch remote model weights and images into safe local directories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			downloader.Version = version
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to YAML config file (or ASSETFETCH_CONFIG; default: ~/.config/assetfetch/config.yml)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error (default from config, else info)")
	pf.BoolVar(&g.jsonLogs, "log-json", false, "JSON log output")

	root.AddCommand(
		newFetchCmd(g),
		newBatchCmd(g),
		newStatusCmd(g),
		newVerifyCmd(g),
		newRootsCmd(g),
		newCleanCmd(g),
		newDoctorCmd(g),
		newConfigCmd(g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func printError(w io.Writer, err error) {
	fe := fetcherrors.Friendly(err)
	fmt.Fprintln(w, "error:", fe.Error())
	if fe.Details != nil && fe.Details.Error() != fe.Message {
		fmt.Fprintln(w, "details:", fe.Details)
	}
}
