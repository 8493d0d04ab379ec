package fetch

import (
	"context"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jxwalker/assetfetch/internal/batch"
	"github.com/jxwalker/assetfetch/internal/config"
	"github.com/jxwalker/assetfetch/internal/downloader"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
	"github.com/jxwalker/assetfetch/internal/placer"
	"github.com/jxwalker/assetfetch/internal/util"
)

// Result is the outcome of one batch item.
type Result struct {
	Index   int
	Item    Item
	Outcome Outcome
	Err     error
}

// Hooks observe a batch run. Every field is optional; hooks may be called
// from several goroutines at once.
type Hooks struct {
	Sink  func(i int) downloader.Sink
	Start func(i int)
	Done  func(r Result)
}

// Summary counts batch outcomes.
type Summary struct {
	Downloaded, Skipped, Failed int
	Bytes                       int64
}

func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Failed++
		case r.Outcome.Skipped:
			s.Skipped++
		default:
			s.Downloaded++
			s.Bytes += r.Outcome.Bytes
		}
	}
	return s
}

// RunBatch fetches items with at most concurrency.global_files in flight.
// A failed item never stops the others; results are in item order.
func (f *Fetcher) RunBatch(ctx context.Context, items []Item, h Hooks) []Result {
	results := make([]Result, len(items))
	limit := f.cfg.Concurrency.GlobalFiles
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range items {
		i := i
		g.Go(func() error {
			r := Result{Index: i, Item: items[i]}
			if err := ctx.Err(); err != nil {
				r.Err = fetcherrors.New(fetcherrors.KindCancelled, "batch", err)
			} else {
				if h.Start != nil {
					h.Start(i)
				}
				var sink downloader.Sink
				if h.Sink != nil {
					sink = h.Sink(i)
				}
				r.Outcome, r.Err = f.Fetch(ctx, items[i], sink)
			}
			if r.Err != nil {
				f.log.Errorf("item %d (%s): %v", i+1, items[i].URL, r.Err)
			}
			results[i] = r
			if h.Done != nil {
				h.Done(r)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// JobItems converts YAML jobs to items, falling back to defaultRoot for jobs
// that name neither a root nor an output.
func JobItems(jobs []batch.Job, defaultRoot string) []Item {
	items := make([]Item, 0, len(jobs))
	for _, j := range jobs {
		root := j.Root
		if root == "" && j.Output == "" {
			root = defaultRoot
		}
		items = append(items, Item{URL: strings.TrimSpace(j.URI), Root: root, Output: j.Output, FileName: j.Name, SHA256: j.SHA256, Force: j.Force})
	}
	return items
}

const defaultImageExt = ".jpg"

// ExportPrompts downloads every manifest image into <root>/<folder> as
// <id><ext> and writes non-empty prompts beside it as <id>.txt. Entries with
// no image_url are skipped. It returns the folder path and per-entry results.
// An unknown root falls back to the output root.
func (f *Fetcher) ExportPrompts(ctx context.Context, entries []batch.PromptEntry, root, folder string, h Hooks) (string, []Result, error) {
	if _, ok := f.resolver.RootFor(root); !ok {
		if root != "" {
			f.log.Warnf("unknown root %q for prompt export; using %s", root, config.RootOutput)
		}
		root = config.RootOutput
	}
	dir, err := f.resolver.ResolveNamed(root, folder)
	if err != nil {
		return "", nil, err
	}
	var (
		items   []Item
		prompts []batch.PromptEntry
	)
	for _, e := range entries {
		if e.ImageURL == "" {
			f.log.Warnf("skipping entry %s: missing image_url", e.ID)
			continue
		}
		ext := util.URLExt(e.ImageURL)
		if ext == "" {
			ext = defaultImageExt
		}
		items = append(items, Item{URL: e.ImageURL, Root: root, Output: folder, FileName: util.SafeFileName(e.ID) + ext})
		prompts = append(prompts, e)
	}

	done := h.Done
	h.Done = func(r Result) {
		if r.Err == nil {
			if err := writePrompt(dir, prompts[r.Index]); err != nil {
				f.log.Errorf("entry %s: write prompt: %v", prompts[r.Index].ID, err)
			}
		}
		if done != nil {
			done(r)
		}
	}
	results := f.RunBatch(ctx, items, h)
	return dir.Dir(), results, nil
}

func writePrompt(dir placer.ResolvedPath, e batch.PromptEntry) error {
	if strings.TrimSpace(e.Prompt) == "" {
		return nil
	}
	p, err := dir.Join(util.SafeFileName(e.ID) + ".txt")
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, []byte(e.Prompt), 0o644); err != nil {
		return fetcherrors.New(fetcherrors.KindIO, "write prompt", err)
	}
	return nil
}
