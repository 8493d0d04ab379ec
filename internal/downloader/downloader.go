// Package downloader streams a single HTTP(S) resource to disk in fixed-size chunks.
//
// Manager.Download is an unconditional fetch-and-overwrite primitive: deciding
// whether a download is needed at all belongs to the caller (see internal/fetch).
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jxwalker/assetfetch/internal/config"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
	"github.com/jxwalker/assetfetch/internal/lockfile"
	"github.com/jxwalker/assetfetch/internal/logging"
	"github.com/jxwalker/assetfetch/internal/placer"
	"github.com/jxwalker/assetfetch/internal/system"
	"github.com/jxwalker/assetfetch/internal/util"
)

// Request describes one download. The manager never modifies it.
type Request struct {
	URL     string
	DestDir placer.ResolvedPath
	// FileName defaults to util.ResolveFilename(URL).
	FileName string
	// ChunkSize defaults to the configured chunk size.
	ChunkSize int64
	Headers   map[string]string
	Query     url.Values
	// ExpectedSHA256, when set, must match the downloaded bytes.
	ExpectedSHA256 string
}

// Completed describes a file that was written and verified non-empty.
type Completed struct {
	FilePath  string
	ByteCount int64
	SHA256    string
}

// Result holds exactly one of Completed or Failed.
type Result struct {
	Completed *Completed
	Failed    *fetcherrors.Error
	// Retries counts requests re-sent after a retryable failure.
	Retries int
}

func completed(path string, n int64, sum string) Result {
	return Result{Completed: &Completed{FilePath: path, ByteCount: n, SHA256: sum}}
}

func failed(err *fetcherrors.Error) Result {
	return Result{Failed: err}
}

// OK reports whether the download completed.
func (r Result) OK() bool { return r.Completed != nil }

// Err returns the failure as an error, or nil.
func (r Result) Err() error {
	if r.Failed == nil {
		return nil
	}
	return r.Failed
}

// ProgressEvent is delivered after every chunk written to disk.
type ProgressEvent struct {
	BytesReceived int64
	// TotalBytes is -1 when the server sent no Content-Length.
	TotalBytes int64
	ChunkIndex int
}

// KnownTotal reports whether TotalBytes is meaningful.
func (e ProgressEvent) KnownTotal() bool { return e.TotalBytes >= 0 }

// Fraction returns progress in [0,1], or 0 when the total is unknown.
func (e ProgressEvent) Fraction() float64 {
	if e.TotalBytes <= 0 {
		return 0
	}
	f := float64(e.BytesReceived) / float64(e.TotalBytes)
	if f > 1 {
		return 1
	}
	return f
}

// Sink receives progress synchronously from the read loop. It must return
// promptly; a non-nil error (or a panic) aborts the download with KindSink.
type Sink interface {
	OnProgress(ProgressEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ProgressEvent) error

func (f SinkFunc) OnProgress(e ProgressEvent) error { return f(e) }

type nopSink struct{}

func (nopSink) OnProgress(ProgressEvent) error { return nil }

// Metrics is the subset of the metrics manager the downloader reports to.
type Metrics interface {
	AddBytes(int64)
	IncRetries(int64)
}

type Manager struct {
	cfg     *config.Config
	log     *logging.Logger
	client  *http.Client
	metrics Metrics
	sleep   func(context.Context, time.Duration) error
}

// NewManager builds a manager using cfg's network and retry settings.
// m may be nil.
func NewManager(cfg *config.Config, log *logging.Logger, m Metrics) *Manager {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{cfg: cfg, log: log, client: newHTTPClient(cfg), metrics: m, sleep: sleepCtx}
}

// WithHTTPClient replaces the HTTP client, e.g. with an httptest server's client.
func (m *Manager) WithHTTPClient(c *http.Client) *Manager {
	m.client = c
	return m
}

// Download fetches req.URL into req.DestDir, overwriting any existing file.
// The body is staged in a hidden sibling file and renamed into place only after
// it is complete, non-empty and (optionally) checksum-verified; on every other
// path the staged file is removed.
func (m *Manager) Download(ctx context.Context, req Request, sink Sink) (res Result) {
	if sink == nil {
		sink = nopSink{}
	}
	u, err := util.ParseDownloadURL(req.URL)
	if err != nil {
		return failed(asFetchErr(err, fetcherrors.KindInvalidURL, "download"))
	}
	name := req.FileName
	if name == "" {
		if name, err = util.ResolveFilename(req.URL); err != nil {
			return failed(asFetchErr(err, fetcherrors.KindInvalidURL, "download"))
		}
	}
	dest, err := req.DestDir.Join(name)
	if err != nil {
		return failed(asFetchErr(err, fetcherrors.KindPathEscape, "download"))
	}
	chunk := req.ChunkSize
	if chunk <= 0 {
		chunk = m.cfg.ChunkSize()
	}
	log := m.log.With("url", logging.SanitizeURL(req.URL))

	lock, err := lockfile.Acquire(lockPath(dest))
	if err != nil {
		return failed(fetcherrors.New(fetcherrors.KindIO, "lock", err))
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warnf("release lock: %v", err)
		}
	}()

	start := time.Now()
	resp, retries, ferr := m.open(ctx, u, req)
	defer func() { res.Retries = retries }()
	if ferr != nil {
		return failed(ferr)
	}
	defer func() { _ = resp.Body.Close() }()
	log.Debugf("GET %s -> %s (content-length %d)", logging.SanitizeURL(req.URL), resp.Status, resp.ContentLength)

	if resp.ContentLength > 0 {
		if err := system.CheckSpace(filepath.Dir(dest), uint64(resp.ContentLength)); err != nil {
			return failed(fetcherrors.New(fetcherrors.KindIO, "preflight", err))
		}
	}

	stage := stagePath(dest)
	f, err := os.OpenFile(stage, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return failed(fetcherrors.New(fetcherrors.KindIO, "create", err))
	}
	published, closed := false, false
	defer func() {
		if published {
			return
		}
		if !closed {
			_ = f.Close()
		}
		if err := os.Remove(stage); err != nil && !os.IsNotExist(err) {
			log.Warnf("remove staged file %s: %v", stage, err)
		}
	}()

	hasher := sha256.New()
	n, ferr := m.stream(ctx, resp, io.MultiWriter(f, hasher), chunk, sink)
	if ferr != nil {
		log.Debugf("aborted after %s: %v", humanize.IBytes(uint64(n)), ferr)
		return failed(ferr)
	}
	if n == 0 {
		return failed(fetcherrors.New(fetcherrors.KindEmptyDownload, "download", fmt.Errorf("%s returned no data", logging.SanitizeURL(req.URL))))
	}
	sum := hex.EncodeToString(hasher.Sum(nil))
	if req.ExpectedSHA256 != "" && !util.EqualSHA256(req.ExpectedSHA256, sum) {
		return failed(fetcherrors.New(fetcherrors.KindChecksum, "verify", fmt.Errorf("expected=%s actual=%s", req.ExpectedSHA256, sum)))
	}

	if err := f.Sync(); err != nil {
		return failed(fetcherrors.New(fetcherrors.KindIO, "sync", err))
	}
	closed = true
	if err := f.Close(); err != nil {
		return failed(fetcherrors.New(fetcherrors.KindIO, "close", err))
	}
	if err := os.Rename(stage, dest); err != nil {
		return failed(fetcherrors.New(fetcherrors.KindIO, "rename", err))
	}
	published = true
	if err := fsyncDir(filepath.Dir(dest)); err != nil {
		log.Debugf("fsync dir: %v", err)
	}
	if m.cfg.General.WriteChecksums {
		if err := writeChecksum(dest, sum); err != nil {
			log.Warnf("write checksum file: %v", err)
		}
	}
	log.Infof("downloaded %s (%s in %s)", dest, humanize.IBytes(uint64(n)), time.Since(start).Round(time.Millisecond))
	return completed(dest, n, sum)
}

// stream copies the body in chunk-sized reads, reporting after each write.
// It returns the number of bytes written.
func (m *Manager) stream(ctx context.Context, resp *http.Response, w io.Writer, chunk int64, sink Sink) (int64, *fetcherrors.Error) {
	buf := make([]byte, chunk)
	total := resp.ContentLength
	var written int64
	for idx := 0; ; {
		if err := ctx.Err(); err != nil {
			return written, fetcherrors.New(fetcherrors.KindCancelled, "read", err)
		}
		n, rerr := io.ReadFull(resp.Body, buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, fetcherrors.New(fetcherrors.KindIO, "write", err)
			}
			written += int64(n)
			if m.metrics != nil {
				m.metrics.AddBytes(int64(n))
			}
			if err := notify(sink, ProgressEvent{BytesReceived: written, TotalBytes: total, ChunkIndex: idx}); err != nil {
				return written, fetcherrors.New(fetcherrors.KindSink, "progress", err)
			}
			idx++
		}
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if ctx.Err() != nil {
			return written, fetcherrors.New(fetcherrors.KindCancelled, "read", ctx.Err())
		}
		return written, fetcherrors.New(fetcherrors.KindNetwork, "read", rerr)
	}
	// A short body with a declared length means the connection dropped.
	if total >= 0 && written != total {
		return written, fetcherrors.New(fetcherrors.KindNetwork, "read", fmt.Errorf("truncated body: got %d of %d bytes", written, total))
	}
	return written, nil
}

// notify calls the sink, converting a panic into an error.
func notify(sink Sink, ev ProgressEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("progress sink panicked: %v", r)
		}
	}()
	return sink.OnProgress(ev)
}

// asFetchErr keeps an existing kind, otherwise wraps err with kind.
func asFetchErr(err error, kind fetcherrors.Kind, op string) *fetcherrors.Error {
	var fe *fetcherrors.Error
	if errors.As(err, &fe) {
		return fe
	}
	return fetcherrors.New(kind, op, err)
}
