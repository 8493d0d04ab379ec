package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jxwalker/assetfetch/internal/downloader"
	"github.com/jxwalker/assetfetch/internal/fetch"
	"github.com/jxwalker/assetfetch/internal/tui"
)

// runTUI drives run under a progress view with one row per label. Quitting
// the view cancels the downloads; runTUI waits for them to stop either way.
func runTUI(ctx context.Context, labels []string, run func(ctx context.Context, h fetch.Hooks) []fetch.Result) ([]fetch.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.New(labels, cancel), tea.WithOutput(os.Stderr))
	var results []fetch.Result
	done := make(chan struct{})
	go func() {
		defer close(done)
		h := fetch.Hooks{
			Sink:  func(i int) downloader.Sink { return tui.Sink(p, i) },
			Start: func(i int) { p.Send(tui.StartMsg{ID: i}) },
			Done: func(r fetch.Result) {
				p.Send(tui.DoneMsg{ID: r.Index, Path: r.Outcome.Path, Bytes: r.Outcome.Bytes, Skipped: r.Outcome.Skipped, Err: r.Err})
			},
		}
		results = run(ctx, h)
		p.Send(tui.FinishedMsg{})
	}()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	cancel()
	<-done
	return results, err
}
