package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jxwalker/assetfetch/internal/batch"
	"github.com/jxwalker/assetfetch/internal/downloader"
	"github.com/jxwalker/assetfetch/internal/fetch"
	"github.com/jxwalker/assetfetch/internal/logging"
	"github.com/jxwalker/assetfetch/internal/progress"
)

type batchOptions struct {
	root   string
	folder string
	jobs   int
	tui    bool
	quiet  bool
}

func newBatchCmd(g *globalFlags) *cobra.Command {
	o := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Download every job in a YAML batch file or JSON prompt manifest",
		Long: `Run a batch file. A .json file is a prompt manifest:

  {"<id>": {"image_url": "...", "prompt": "..."}, ...}

Each image is saved as <id><ext> under <root>/<folder> (default root output,
default folder the manifest's base name) with its prompt in <id>.txt.
Any other file is a YAML job list (see "batch import"). Failed items do not
stop the rest; the command fails if any item failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, g, o, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.root, "root", "", "Root for jobs that name neither root nor output (manifests: default output)")
	f.StringVar(&o.folder, "folder", "", "Manifest output folder under the root (default: manifest base name)")
	f.IntVarP(&o.jobs, "jobs", "j", 0, "Files downloaded in parallel (default from config)")
	f.BoolVar(&o.tui, "tui", false, "Show an interactive progress view")
	f.BoolVar(&o.quiet, "quiet", false, "No progress output")
	cmd.MarkFlagsMutuallyExclusive("tui", "quiet")
	cmd.AddCommand(newBatchImportCmd(g))
	return cmd
}

func runBatch(cmd *cobra.Command, g *globalFlags, o *batchOptions, path string) error {
	if o.jobs < 0 {
		return fmt.Errorf("--jobs must be positive")
	}
	a, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	if o.jobs > 0 {
		a.cfg.Concurrency.GlobalFiles = o.jobs
	}

	var (
		labels []string
		run    func(ctx context.Context, h fetch.Hooks) []fetch.Result
		folder string
	)
	if batch.IsPromptManifest(path) {
		entries, err := batch.LoadPrompts(path)
		if err != nil {
			return err
		}
		name := o.folder
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		for _, e := range entries {
			if e.ImageURL != "" {
				labels = append(labels, e.ID)
			}
		}
		run = func(ctx context.Context, h fetch.Hooks) []fetch.Result {
			dir, results, err := a.fetcher.ExportPrompts(ctx, entries, o.root, name, h)
			if err != nil {
				a.log.Errorf("prompt export: %v", err)
				return nil
			}
			folder = dir
			return results
		}
	} else {
		bf, err := batch.Load(path)
		if err != nil {
			return err
		}
		items := fetch.JobItems(bf.Jobs, o.root)
		for _, it := range items {
			labels = append(labels, logging.SanitizeURL(it.URL))
		}
		run = func(ctx context.Context, h fetch.Hooks) []fetch.Result {
			return a.fetcher.RunBatch(ctx, items, h)
		}
	}

	var results []fetch.Result
	if o.tui {
		results, err = runTUI(cmd.Context(), labels, run)
		if err != nil {
			return err
		}
	} else {
		results = run(cmd.Context(), o.hooks(a, cmd.OutOrStdout(), labels))
	}
	if results == nil && len(labels) > 0 {
		return fmt.Errorf("batch %s did not run", path)
	}
	return reportBatch(cmd.OutOrStdout(), folder, results)
}

// hooks prints one line per finished item. A live progress line is only
// drawn when items run one at a time on a terminal.
func (o *batchOptions) hooks(a *app, out io.Writer, labels []string) fetch.Hooks {
	var mu sync.Mutex
	h := fetch.Hooks{
		Done: func(r fetch.Result) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(out, resultLine(r))
		},
	}
	if o.quiet {
		return h
	}
	serial := a.cfg.Concurrency.GlobalFiles <= 1
	tty := logging.IsTerminal(os.Stderr)
	h.Sink = func(i int) downloader.Sink {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		if serial && tty {
			return progress.NewLine(os.Stderr, label)
		}
		return progress.NewLog(a.log, label)
	}
	return h
}

func resultLine(r fetch.Result) string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("failed  %s: %v", logging.SanitizeURL(r.Item.URL), r.Err)
	case r.Outcome.Skipped:
		return fmt.Sprintf("skipped %s", r.Outcome.Path)
	default:
		return fmt.Sprintf("ok      %s (%s)", r.Outcome.Path, humanize.Bytes(uint64(r.Outcome.Bytes)))
	}
}

func reportBatch(out io.Writer, folder string, results []fetch.Result) error {
	s := fetch.Summarize(results)
	if folder != "" {
		fmt.Fprintf(out, "folder: %s\n", folder)
	}
	fmt.Fprintf(out, "%d downloaded (%s), %d skipped, %d failed\n",
		s.Downloaded, humanize.Bytes(uint64(s.Bytes)), s.Skipped, s.Failed)
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d items failed", s.Failed, len(results))
	}
	return nil
}

type importOptions struct {
	input  string
	output string
	root   string
}

func newBatchImportCmd(g *globalFlags) *cobra.Command {
	o := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Convert a URL list into a YAML batch file",
		Long: `Read one URL per line, optionally followed by key=value pairs
(root=, output=, name=, sha256=, force=true). Blank lines and lines starting
with # are ignored. Writes the batch YAML to --output or stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(o.input)
			if err != nil {
				return err
			}
			defer in.Close()
			bf, err := importURLList(in, o.root)
			if err != nil {
				return err
			}
			if o.output == "" {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(bf)
			}
			if err := batch.Save(o.output, bf); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote batch: %s (%d jobs)\n", o.output, len(bf.Jobs))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.input, "input", "", "Text file with URLs (one per line)")
	f.StringVar(&o.output, "output", "", "Output batch YAML path (default: stdout)")
	f.StringVar(&o.root, "root", "", "Default root for every job")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func importURLList(r io.Reader, defaultRoot string) (*batch.File, error) {
	out := &batch.File{Version: 1}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 1024), 1024*1024)
	lineNum := 0
	for s.Scan() {
		lineNum++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		toks := strings.Fields(line)
		j := batch.Job{URI: toks[0], Root: defaultRoot}
		for _, t := range toks[1:] {
			k, v, ok := strings.Cut(t, "=")
			if !ok {
				return nil, fmt.Errorf("line %d: %q: want key=value", lineNum, t)
			}
			switch strings.ToLower(strings.TrimSpace(k)) {
			case "root":
				j.Root = v
			case "output":
				j.Output = v
			case "name":
				j.Name = v
			case "sha256":
				j.SHA256 = v
			case "force":
				j.Force = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
			default:
				return nil, fmt.Errorf("line %d: unknown key %q", lineNum, k)
			}
		}
		out.Jobs = append(out.Jobs, j)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(out.Jobs) == 0 {
		return nil, fmt.Errorf("no URLs found")
	}
	return out, nil
}
