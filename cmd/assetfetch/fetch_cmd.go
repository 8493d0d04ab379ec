package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jxwalker/assetfetch/internal/downloader"
	"github.com/jxwalker/assetfetch/internal/fetch"
	"github.com/jxwalker/assetfetch/internal/logging"
	"github.com/jxwalker/assetfetch/internal/progress"
)

type fetchOptions struct {
	root        string
	output      string
	name        string
	sha256      string
	chunkSizeMB int
	headers     []string
	query       []string
	force       bool
	tui         bool
	quiet       bool
}

func newFetchCmd(g *globalFlags) *cobra.Command {
	o := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Download one URL into a root directory",
		Long: `Download one URL into a named root (models, input, temp, output) or a
relative output path under the default root. With --root, --output names a
sub-path inside that root. The file name comes from the URL path unless --name
is given. Existing non-empty files are skipped unless
--force is set.

URL may also be hf://owner/repo/path?rev=main or
civitai://model/ID?version=V&file=SUBSTRING. With --root auto, model files go
to models/<kind> (loras, vae, checkpoints, ...) and images to input.`,
		Example: `  assetfetch fetch https://example.com/weights/model.safetensors --root models
  assetfetch fetch https://example.com/detail.safetensors --root models --output loras
  assetfetch fetch https://example.com/img.png --output renders/day1 --name cover.png
  assetfetch fetch hf://acme/styles/ink_lora.safetensors --root auto`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, g, o, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.root, "root", "", "Named root to download into (models|input|temp|output), or auto to pick by file name")
	f.StringVar(&o.output, "output", "", "Sub-path under --root, or a full output spec when --root is unset")
	f.StringVar(&o.name, "name", "", "Override the file name derived from the URL")
	f.StringVar(&o.sha256, "sha256", "", "Expected SHA-256 of the file")
	f.IntVar(&o.chunkSizeMB, "chunk-size-mb", 0, "Streaming chunk size in MiB (default from config)")
	f.StringArrayVarP(&o.headers, "header", "H", nil, "Extra request header K=V (repeatable)")
	f.StringArrayVarP(&o.query, "query", "q", nil, "Extra query parameter K=V (repeatable)")
	f.BoolVar(&o.force, "force", false, "Download even if the file already exists")
	f.BoolVar(&o.tui, "tui", false, "Show an interactive progress view")
	f.BoolVar(&o.quiet, "quiet", false, "No progress output")
	cmd.MarkFlagsMutuallyExclusive("tui", "quiet")
	return cmd
}

func runFetch(cmd *cobra.Command, g *globalFlags, o *fetchOptions, rawURL string) error {
	it, err := o.item(rawURL)
	if err != nil {
		return err
	}
	a, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	var out fetch.Outcome
	if o.tui {
		results, err := runTUI(cmd.Context(), []string{rawURL}, func(ctx context.Context, h fetch.Hooks) []fetch.Result {
			return a.fetcher.RunBatch(ctx, []fetch.Item{it}, h)
		})
		if err != nil {
			return err
		}
		if results[0].Err != nil {
			return results[0].Err
		}
		out = results[0].Outcome
	} else {
		sink, done := o.sink(a, rawURL)
		out, err = a.fetcher.Fetch(cmd.Context(), it, sink)
		done()
		if err != nil {
			return err
		}
	}
	if out.Skipped {
		a.log.Infof("already present: %s", out.Path)
	} else {
		a.log.Infof("downloaded %s (%s)", out.Path, humanize.Bytes(uint64(out.Bytes)))
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Path)
	return nil
}

func (o *fetchOptions) item(rawURL string) (fetch.Item, error) {
	headers, err := parsePairs(o.headers, "header")
	if err != nil {
		return fetch.Item{}, err
	}
	var query map[string][]string
	for _, kv := range o.query {
		k, v, err := splitPair(kv, "query")
		if err != nil {
			return fetch.Item{}, err
		}
		if query == nil {
			query = map[string][]string{}
		}
		query[k] = append(query[k], v)
	}
	if o.chunkSizeMB < 0 {
		return fetch.Item{}, fmt.Errorf("--chunk-size-mb must be positive")
	}
	return fetch.Item{
		URL:       strings.TrimSpace(rawURL),
		Root:      o.root,
		Output:    o.output,
		FileName:  o.name,
		SHA256:    o.sha256,
		Headers:   headers,
		Query:     query,
		ChunkSize: int64(o.chunkSizeMB) << 20,
		Force:     o.force,
	}, nil
}

// sink picks the progress display for a single non-TUI download. The
// returned func finishes the display.
func (o *fetchOptions) sink(a *app, label string) (downloader.Sink, func()) {
	switch {
	case o.quiet:
		return progress.Nop(), func() {}
	case logging.IsTerminal(os.Stderr):
		l := progress.NewLine(os.Stderr, label)
		return l, l.Done
	default:
		return progress.NewLog(a.log, label), func() {}
	}
}

// parsePairs splits repeated K=V flag values. Later keys win.
func parsePairs(vals []string, flag string) (map[string]string, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(vals))
	for _, kv := range vals {
		k, v, err := splitPair(kv, flag)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func splitPair(kv, flag string) (string, string, error) {
	k, v, ok := strings.Cut(kv, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", fmt.Errorf("--%s %q: want KEY=VALUE", flag, kv)
	}
	return k, v, nil
}
