package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jxwalker/assetfetch/internal/config"
)

func TestDisabledIsNilSafe(t *testing.T) {
	m := New(&config.Config{})
	if m != nil {
		t.Fatalf("expected nil manager when disabled")
	}
	m.AddBytes(10)
	m.IncFailures("http")
	if err := m.Write(); err != nil {
		t.Fatalf("nil write: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prom", "assetfetch.prom")
	cfg := &config.Config{}
	cfg.Metrics.PrometheusTextfile.Enabled = true
	cfg.Metrics.PrometheusTextfile.Path = p

	m := New(cfg)
	m.AddBytes(1024)
	m.AddBytes(1024)
	m.IncRetries(1)
	m.IncDownloadsSuccess()
	m.IncDownloadsSkipped()
	m.IncFailures("http")
	m.IncFailures("http")
	m.IncFailures("network")
	m.ObserveDownloadSeconds(1.5)
	if err := m.Write(); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{
		"assetfetch_bytes_downloaded_total 2048",
		"assetfetch_retries_total 1",
		"assetfetch_downloads_success_total 1",
		"assetfetch_downloads_skipped_total 1",
		`assetfetch_download_failures_total{kind="http"} 2`,
		`assetfetch_download_failures_total{kind="network"} 1`,
		"assetfetch_last_download_seconds 1.500000",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %q in:\n%s", want, s)
		}
	}
	ents, _ := os.ReadDir(filepath.Dir(p))
	if len(ents) != 1 {
		t.Fatalf("temp file left behind: %d entries", len(ents))
	}
}
