package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jxwalker/assetfetch/internal/config"
)

type Manager struct {
	path string
	mu   sync.Mutex
	// counters
	bytesTotal       int64
	retriesTotal     int64
	downloadsSuccess int64
	downloadsSkipped int64
	failures         map[string]int64
	lastDownloadSec  float64
}

// New returns nil when the textfile exporter is disabled; every method is nil-safe.
func New(cfg *config.Config) *Manager {
	if cfg == nil || !cfg.Metrics.PrometheusTextfile.Enabled || cfg.Metrics.PrometheusTextfile.Path == "" {
		return nil
	}
	p := cfg.Metrics.PrometheusTextfile.Path
	_ = os.MkdirAll(filepath.Dir(p), 0o755)
	return &Manager{path: p, failures: map[string]int64{}}
}

func (m *Manager) AddBytes(n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.bytesTotal += n
	m.mu.Unlock()
}

func (m *Manager) IncRetries(n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.retriesTotal += n
	m.mu.Unlock()
}

func (m *Manager) IncDownloadsSuccess() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.downloadsSuccess++
	m.mu.Unlock()
}

func (m *Manager) IncDownloadsSkipped() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.downloadsSkipped++
	m.mu.Unlock()
}

// IncFailures counts a failed download under its error kind label.
func (m *Manager) IncFailures(kind string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.failures[kind]++
	m.mu.Unlock()
}

func (m *Manager) ObserveDownloadSeconds(sec float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lastDownloadSec = sec
	m.mu.Unlock()
}

// Write atomically replaces the textfile with the current counters.
func (m *Manager) Write() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.CreateTemp(filepath.Dir(m.path), ".metrics.tmp.*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(f.Name()) }()

	fmt.Fprintf(f, "# HELP assetfetch_bytes_downloaded_total Total bytes downloaded.\n")
	fmt.Fprintf(f, "# TYPE assetfetch_bytes_downloaded_total counter\n")
	fmt.Fprintf(f, "assetfetch_bytes_downloaded_total %d\n", m.bytesTotal)

	fmt.Fprintf(f, "# HELP assetfetch_retries_total Total request retries.\n")
	fmt.Fprintf(f, "# TYPE assetfetch_retries_total counter\n")
	fmt.Fprintf(f, "assetfetch_retries_total %d\n", m.retriesTotal)

	fmt.Fprintf(f, "# HELP assetfetch_downloads_success_total Total successful downloads.\n")
	fmt.Fprintf(f, "# TYPE assetfetch_downloads_success_total counter\n")
	fmt.Fprintf(f, "assetfetch_downloads_success_total %d\n", m.downloadsSuccess)

	fmt.Fprintf(f, "# HELP assetfetch_downloads_skipped_total Downloads skipped because the file already existed.\n")
	fmt.Fprintf(f, "# TYPE assetfetch_downloads_skipped_total counter\n")
	fmt.Fprintf(f, "assetfetch_downloads_skipped_total %d\n", m.downloadsSkipped)

	fmt.Fprintf(f, "# HELP assetfetch_download_failures_total Failed downloads by error kind.\n")
	fmt.Fprintf(f, "# TYPE assetfetch_download_failures_total counter\n")
	kinds := make([]string, 0, len(m.failures))
	for k := range m.failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(f, "assetfetch_download_failures_total{kind=%q} %d\n", k, m.failures[k])
	}

	fmt.Fprintf(f, "# HELP assetfetch_last_download_seconds Duration of the last completed download in seconds.\n")
	fmt.Fprintf(f, "# TYPE assetfetch_last_download_seconds gauge\n")
	fmt.Fprintf(f, "assetfetch_last_download_seconds %.6f\n", m.lastDownloadSec)

	fmt.Fprintf(f, "# HELP assetfetch_metrics_timestamp_seconds UNIX timestamp when this file was written.\n")
	fmt.Fprintf(f, "# TYPE assetfetch_metrics_timestamp_seconds gauge\n")
	fmt.Fprintf(f, "assetfetch_metrics_timestamp_seconds %d\n", time.Now().Unix())

	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), m.path)
}
