package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jxwalker/assetfetch/internal/state"
)

type statusOptions struct {
	jsonOut    bool
	onlyErrors bool
	check      bool
	prune      bool
	status     string
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	o := &statusOptions{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show download history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, st, err := openState(g)
			if err != nil {
				return err
			}
			defer st.Close()
			out := cmd.OutOrStdout()

			if o.check {
				if err := st.CheckIntegrity(); err != nil {
					return err
				}
				stats, err := st.GetStats()
				if err != nil {
					return err
				}
				printStats(out, st.Path, stats)
				return nil
			}
			if o.prune {
				n, err := st.PruneMissing()
				if err != nil {
					return err
				}
				log.Infof("pruned %d rows for missing files", n)
				fmt.Fprintf(out, "pruned %d\n", n)
				return nil
			}

			rows, err := st.ListDownloads(o.status)
			if err != nil {
				return err
			}
			if o.onlyErrors {
				rows = errorRows(rows)
			}
			if o.jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			printRows(out, rows)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.jsonOut, "json", false, "Print rows as JSON")
	f.BoolVar(&o.onlyErrors, "only-errors", false, "Only failed and checksum-mismatch rows")
	f.StringVar(&o.status, "status", "", "Only rows with this status")
	f.BoolVar(&o.check, "check", false, "Check database integrity and print totals")
	f.BoolVar(&o.prune, "prune", false, "Delete rows whose file no longer exists")
	cmd.MarkFlagsMutuallyExclusive("check", "prune", "json")
	return cmd
}

func errorRows(rows []state.DownloadRow) []state.DownloadRow {
	out := rows[:0:0]
	for _, r := range rows {
		if state.IsErrorStatus(r.Status) {
			out = append(out, r)
		}
	}
	return out
}

func printRows(w io.Writer, rows []state.DownloadRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no downloads recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSIZE\tUPDATED\tDEST\tDETAIL")
	for _, r := range rows {
		detail := r.URL
		if r.LastError != "" {
			detail = r.ErrorKind + ": " + r.LastError
		}
		if r.Retries > 0 {
			detail += fmt.Sprintf(" (%d retries)", r.Retries)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Status, humanize.Bytes(uint64(r.Size)), humanize.Time(r.UpdatedAt), r.Dest, detail)
	}
	_ = tw.Flush()
}

func printStats(w io.Writer, path string, s *state.DBStats) {
	fmt.Fprintf(w, "database:   %s (%s, integrity ok)\n", path, humanize.Bytes(uint64(s.DatabaseSize)))
	fmt.Fprintf(w, "downloads:  %d\n", s.Downloads)
	fmt.Fprintf(w, "complete:   %d (%s)\n", s.CompletedDownloads, humanize.Bytes(uint64(s.BytesComplete)))
	fmt.Fprintf(w, "skipped:    %d\n", s.SkippedDownloads)
	fmt.Fprintf(w, "failed:     %d\n", s.FailedDownloads)
}
