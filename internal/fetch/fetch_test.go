package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jxwalker/assetfetch/internal/batch"
	"github.com/jxwalker/assetfetch/internal/config"
	"github.com/jxwalker/assetfetch/internal/downloader"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
	"github.com/jxwalker/assetfetch/internal/metrics"
	"github.com/jxwalker/assetfetch/internal/placer"
	"github.com/jxwalker/assetfetch/internal/resolver"
	"github.com/jxwalker/assetfetch/internal/state"
	"github.com/jxwalker/assetfetch/internal/testutil"
)

type env struct {
	cfg *config.Config
	srv *testutil.FileServer
	f   *Fetcher
	st  *state.DB
	m   *metrics.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testutil.Config(t)
	cfg.Metrics.PrometheusTextfile.Enabled = true
	cfg.Metrics.PrometheusTextfile.Path = filepath.Join(cfg.General.DataRoot, "metrics", "assetfetch.prom")
	for _, dir := range cfg.Roots.Map() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	srv := testutil.NewFileServer(t)
	r, err := placer.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	st, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	m := metrics.New(cfg)
	mgr := downloader.NewManager(cfg, nil, m).WithHTTPClient(srv.Client())
	return &env{cfg: cfg, srv: srv, f: New(cfg, nil, r, mgr, st, m), st: st, m: m}
}

func (e *env) promText(t *testing.T) string {
	t.Helper()
	if err := e.m.Write(); err != nil {
		t.Fatalf("metrics write: %v", err)
	}
	b, err := os.ReadFile(e.cfg.Metrics.PrometheusTextfile.Path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestFetchThenSkipWithoutNetwork(t *testing.T) {
	e := newEnv(t)
	e.srv.Handle("/files/style.safetensors", testutil.Route{Body: testutil.Payload(5000)})
	it := Item{URL: e.srv.URLFor("/files/style.safetensors"), Root: "models", Output: "loras"}

	out, err := e.f.Fetch(context.Background(), it, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := filepath.Join(e.cfg.Roots.Models, "loras", "style.safetensors")
	if out.Path != want || out.Bytes != 5000 || out.Skipped {
		t.Fatalf("outcome = %+v", out)
	}

	again, err := e.f.Fetch(context.Background(), it, downloader.SinkFunc(func(downloader.ProgressEvent) error {
		t.Fatalf("skipped fetch must not report progress")
		return nil
	}))
	if err != nil || !again.Skipped || again.Path != want || again.Bytes != 5000 {
		t.Fatalf("second fetch = %+v, %v", again, err)
	}
	if e.srv.Hits("/files/style.safetensors") != 1 {
		t.Fatalf("skip must not touch the network, hits=%d", e.srv.Hits("/files/style.safetensors"))
	}
	rows, _ := e.st.ListDownloads(state.StatusSkipped)
	if len(rows) != 1 || rows[0].Dest != want {
		t.Fatalf("state rows = %+v", rows)
	}
	prom := e.promText(t)
	for _, s := range []string{"assetfetch_downloads_success_total 1", "assetfetch_downloads_skipped_total 1", "assetfetch_bytes_downloaded_total 5000"} {
		if !strings.Contains(prom, s) {
			t.Errorf("metrics missing %q", s)
		}
	}
}

func TestFetchReplacesEmptyFile(t *testing.T) {
	e := newEnv(t)
	e.srv.Handle("/img.png", testutil.Route{Body: []byte("png bytes")})
	dst := filepath.Join(e.cfg.Roots.Temp, "img.png")
	if err := os.WriteFile(dst, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := e.f.Fetch(context.Background(), Item{URL: e.srv.URLFor("/img.png"), Root: "temp"}, nil)
	if err != nil || out.Skipped || out.Bytes != 9 {
		t.Fatalf("outcome = %+v, %v", out, err)
	}
}

func TestFetchForceAndOverwrite(t *testing.T) {
	e := newEnv(t)
	e.srv.Handle("/a.bin", testutil.Route{Body: []byte("fresh")})
	dst := filepath.Join(e.cfg.Roots.Output, "a.bin")
	if err := os.WriteFile(dst, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := e.f.Fetch(context.Background(), Item{URL: e.srv.URLFor("/a.bin"), Force: true}, nil)
	if err != nil || out.Skipped {
		t.Fatalf("forced fetch = %+v, %v", out, err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "fresh" {
		t.Fatalf("content = %q", b)
	}

	e.cfg.General.AllowOverwrite = true
	if out, err := e.f.Fetch(context.Background(), Item{URL: e.srv.URLFor("/a.bin")}, nil); err != nil || out.Skipped {
		t.Fatalf("allow_overwrite fetch = %+v, %v", out, err)
	}
	if e.srv.Hits("/a.bin") != 2 {
		t.Fatalf("hits = %d", e.srv.Hits("/a.bin"))
	}
}

func TestFetchExistingChecksum(t *testing.T) {
	e := newEnv(t)
	body := []byte("expected content")
	sum := sha256.Sum256(body)
	hexSum := hex.EncodeToString(sum[:])
	e.srv.Handle("/c.bin", testutil.Route{Body: body})
	dst := filepath.Join(e.cfg.Roots.Output, "c.bin")

	if err := os.WriteFile(dst, []byte("corrupted"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := e.f.Fetch(context.Background(), Item{URL: e.srv.URLFor("/c.bin"), SHA256: hexSum}, nil)
	if err != nil || out.Skipped || out.SHA256 != hexSum {
		t.Fatalf("mismatched existing file should be replaced: %+v, %v", out, err)
	}
	out, err = e.f.Fetch(context.Background(), Item{URL: e.srv.URLFor("/c.bin"), SHA256: hexSum}, nil)
	if err != nil || !out.Skipped {
		t.Fatalf("matching file should be skipped: %+v, %v", out, err)
	}
	if e.srv.Hits("/c.bin") != 1 {
		t.Fatalf("hits = %d", e.srv.Hits("/c.bin"))
	}
}

func TestFetchFailureRecorded(t *testing.T) {
	e := newEnv(t)
	_, err := e.f.Fetch(context.Background(), Item{URL: e.srv.URLFor("/nope.bin")}, nil)
	if fetcherrors.StatusOf(err) != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
	rows, _ := e.st.ListDownloads(state.StatusFailed)
	if len(rows) != 1 || rows[0].ErrorKind != fetcherrors.KindHTTP.String() || rows[0].LastError == "" {
		t.Fatalf("failed rows = %+v", rows)
	}
	if !strings.Contains(e.promText(t), `assetfetch_download_failures_total{kind="http_error"} 1`) {
		t.Fatalf("failure metric missing")
	}
}

func TestFetchRejectsBeforeNetwork(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		it   Item
		kind fetcherrors.Kind
	}{
		{Item{URL: "file:///etc/passwd"}, fetcherrors.KindInvalidURL},
		{Item{URL: e.srv.URLFor("/x.bin"), Output: "../../escape"}, fetcherrors.KindPathEscape},
		{Item{URL: e.srv.URLFor("/x.bin"), Root: "modles"}, fetcherrors.KindPathEscape},
		{Item{URL: e.srv.URLFor("/x.bin"), FileName: "../x.bin"}, fetcherrors.KindPathEscape},
	}
	for _, c := range cases {
		if _, err := e.f.Fetch(context.Background(), c.it, nil); fetcherrors.KindOf(err) != c.kind {
			t.Errorf("%+v: got %v, want %s", c.it, err, c.kind)
		}
	}
	if e.srv.TotalHits() != 0 {
		t.Fatalf("rejected items must not reach the network")
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	e := newEnv(t)
	e.cfg.Concurrency.GlobalFiles = 2
	e.srv.Handle("/one.bin", testutil.Route{Body: []byte("1")})
	e.srv.Handle("/three.bin", testutil.Route{Body: []byte("333")})
	items := []Item{
		{URL: e.srv.URLFor("/one.bin")},
		{URL: e.srv.URLFor("/two.bin")},
		{URL: e.srv.URLFor("/three.bin")},
	}
	var mu sync.Mutex
	started, done := 0, 0
	results := e.f.RunBatch(context.Background(), items, Hooks{
		Start: func(int) { mu.Lock(); started++; mu.Unlock() },
		Done:  func(Result) { mu.Lock(); done++; mu.Unlock() },
	})
	if len(results) != 3 || started != 3 || done != 3 {
		t.Fatalf("results=%d started=%d done=%d", len(results), started, done)
	}
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("results out of order: %+v", results)
		}
	}
	if results[1].Err == nil || results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("only item 2 should fail: %+v", results)
	}
	s := Summarize(results)
	if s.Downloaded != 2 || s.Failed != 1 || s.Bytes != 4 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestRunBatchCancelled(t *testing.T) {
	e := newEnv(t)
	e.srv.Handle("/a.bin", testutil.Route{Body: []byte("a")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := e.f.RunBatch(ctx, []Item{{URL: e.srv.URLFor("/a.bin")}, {URL: e.srv.URLFor("/a.bin")}}, Hooks{})
	for _, r := range results {
		if fetcherrors.KindOf(r.Err) != fetcherrors.KindCancelled {
			t.Fatalf("expected cancelled, got %v", r.Err)
		}
	}
	if e.srv.TotalHits() != 0 {
		t.Fatalf("cancelled batch made requests")
	}
}

func TestJobItems(t *testing.T) {
	items := JobItems([]batch.Job{
		{URI: " https://x/a.bin ", Root: "models", Output: "loras"},
		{URI: "https://x/b.bin"},
		{URI: "https://x/c.bin", Output: "input:refs", Name: "c2.bin", Force: true},
	}, "temp")
	if items[0].URL != "https://x/a.bin" || items[0].Root != "models" {
		t.Fatalf("item 0 = %+v", items[0])
	}
	if items[1].Root != "temp" || items[2].Root != "" || items[2].FileName != "c2.bin" || !items[2].Force {
		t.Fatalf("items = %+v", items)
	}
}

func TestExportPrompts(t *testing.T) {
	e := newEnv(t)
	e.srv.Handle("/img/a.png", testutil.Route{Body: []byte("png")})
	e.srv.Handle("/img/b", testutil.Route{Body: []byte("jpeg")})
	entries := []batch.PromptEntry{
		{ID: "a", ImageURL: e.srv.URLFor("/img/a.png"), Prompt: "a red fox"},
		{ID: "b", ImageURL: e.srv.URLFor("/img/b"), Prompt: "   "},
		{ID: "c", Prompt: "no image"},
		{ID: "d", ImageURL: e.srv.URLFor("/img/missing.png"), Prompt: "lost"},
	}
	dir, results, err := e.f.ExportPrompts(context.Background(), entries, "input", "dataset", Hooks{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if dir != filepath.Join(e.cfg.Roots.Input, "dataset") {
		t.Fatalf("dir = %s", dir)
	}
	if len(results) != 3 {
		t.Fatalf("entry without image_url should be skipped, got %d results", len(results))
	}
	if b, err := os.ReadFile(filepath.Join(dir, "a.txt")); err != nil || string(b) != "a red fox" {
		t.Fatalf("a.txt = %q, %v", b, err)
	}
	for _, name := range []string{"a.png", "b.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
	for _, name := range []string{"b.txt", "c.txt", "d.png", "d.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should not exist", name)
		}
	}
}

func TestExportPromptsUnknownRootFallsBack(t *testing.T) {
	e := newEnv(t)
	dir, results, err := e.f.ExportPrompts(context.Background(), nil, "nowhere", "set", Hooks{})
	if err != nil || len(results) != 0 {
		t.Fatalf("export = %v, %v", results, err)
	}
	if dir != filepath.Join(e.cfg.Roots.Output, "set") {
		t.Fatalf("dir = %s", dir)
	}
}

func TestFetchAutoRootAndAlias(t *testing.T) {
	e := newEnv(t)
	e.f.WithAliases(resolver.New(e.cfg, e.srv.Client()).WithBaseURLs(e.srv.URL, ""))
	e.srv.Handle("/acme/styles/resolve/main/ink_lora.safetensors", testutil.Route{Body: testutil.Payload(64)})

	alias := "hf://acme/styles/ink_lora.safetensors"
	out, err := e.f.Fetch(context.Background(), Item{URL: alias, Root: RootAuto}, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := filepath.Join(e.cfg.Roots.Models, "loras", "ink_lora.safetensors")
	if out.Path != want || out.Bytes != 64 {
		t.Fatalf("outcome = %+v want %s", out, want)
	}
	row, err := e.st.GetDownload(alias, want)
	if err != nil || row == nil || row.Status != state.StatusComplete {
		t.Fatalf("history keyed by alias: %+v %v", row, err)
	}

	if _, err := e.f.Fetch(context.Background(), Item{URL: "hf://broken"}, nil); fetcherrors.KindOf(err) != fetcherrors.KindInvalidURL {
		t.Fatalf("malformed alias: %v", err)
	}
}

func TestTargetAutoRoot(t *testing.T) {
	e := newEnv(t)
	cases := map[string]string{
		"https://h/x/seed.png":             e.cfg.Roots.Input,
		"https://h/x/sdxl_vae.safetensors": filepath.Join(e.cfg.Roots.Models, "vae"),
		"https://h/x/readme.txt":           e.cfg.Roots.Output,
	}
	for u, wantDir := range cases {
		dir, _, err := e.f.Target(Item{URL: u, Root: RootAuto})
		if err != nil {
			t.Fatalf("%s: %v", u, err)
		}
		if dir.Dir() != wantDir {
			t.Fatalf("%s: dir=%s want %s", u, dir.Dir(), wantDir)
		}
	}
	dir, _, err := e.f.Target(Item{URL: "https://h/x/ink_lora.safetensors", Root: "AUTO", Output: "styles"})
	if err != nil || dir.Dir() != filepath.Join(e.cfg.Roots.Models, "styles") {
		t.Fatalf("explicit output under auto root: %v %v", dir, err)
	}
}
