package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
	"github.com/jxwalker/assetfetch/internal/state"
	"github.com/jxwalker/assetfetch/internal/util"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var (
		all    bool
		sha256 string
	)
	cmd := &cobra.Command{
		Use:   "verify [PATH]",
		Short: "Re-hash downloaded files and record the result",
		Long: `Re-hash a downloaded file, or with --all every complete, verified or
mismatched row in the history. A row is marked verified when the file matches
its expected SHA-256 (or has none), checksum_mismatch otherwise. With PATH and
--sha256 the file is checked against the given hash even if it has no history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give a PATH or --all")
			}
			if sha256 != "" && !util.ValidSHA256(sha256) {
				return fmt.Errorf("--sha256 %q is not a 64-character hex digest", sha256)
			}
			_, log, st, err := openState(g)
			if err != nil {
				return err
			}
			defer st.Close()

			var rows []state.DownloadRow
			if all {
				list, err := st.ListDownloads("")
				if err != nil {
					return err
				}
				for _, r := range list {
					switch r.Status {
					case state.StatusComplete, state.StatusVerified, state.StatusChecksumMismatch:
						rows = append(rows, r)
					}
				}
			} else {
				rows, err = rowsForPath(st, args[0])
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					if sha256 == "" {
						return fmt.Errorf("no download record for %s; pass --sha256 to check it directly", args[0])
					}
					rows = []state.DownloadRow{{Dest: args[0]}}
				}
			}

			mismatches := 0
			for _, r := range rows {
				if sha256 != "" {
					r.ExpectedSHA256 = sha256
				}
				status, actual, err := verifyRow(st, r)
				if err != nil {
					return err
				}
				if status == state.StatusChecksumMismatch {
					mismatches++
					log.Warnf("checksum mismatch: %s", r.Dest)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-17s %s  %s\n", status, actual, r.Dest)
			}
			if mismatches > 0 {
				return fetcherrors.New(fetcherrors.KindChecksum, "verify",
					fmt.Errorf("%d of %d files do not match", mismatches, len(rows)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Verify every complete download")
	cmd.Flags().StringVar(&sha256, "sha256", "", "Expected SHA-256, overriding the recorded one")
	cmd.MarkFlagsMutuallyExclusive("all", "sha256")
	return cmd
}

func rowsForPath(st *state.DB, path string) ([]state.DownloadRow, error) {
	list, err := st.ListDownloads("")
	if err != nil {
		return nil, err
	}
	var rows []state.DownloadRow
	for _, r := range list {
		if r.Dest == path {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// verifyRow hashes r.Dest and records the outcome for rows that have a URL.
func verifyRow(st *state.DB, r state.DownloadRow) (string, string, error) {
	actual, err := util.HashFileSHA256(r.Dest)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", fetcherrors.New(fetcherrors.KindIO, "verify", fmt.Errorf("%s is missing (run status --prune to drop it)", r.Dest))
		}
		return "", "", fetcherrors.New(fetcherrors.KindIO, "verify", err)
	}
	status := state.StatusVerified
	if r.ExpectedSHA256 != "" && !util.EqualSHA256(r.ExpectedSHA256, actual) {
		status = state.StatusChecksumMismatch
	}
	if r.URL == "" {
		return status, actual, nil
	}
	r.ActualSHA256 = actual
	r.Status = status
	r.ErrorKind, r.LastError = "", ""
	if status == state.StatusChecksumMismatch {
		r.ErrorKind = fetcherrors.KindChecksum.String()
		r.LastError = "expected " + r.ExpectedSHA256
	}
	return status, actual, st.UpsertDownload(r)
}
