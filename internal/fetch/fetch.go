// Package fetch decides whether a download is needed and records its outcome.
//
// It sits between the CLI and downloader.Manager: it resolves the destination
// directory and file name, skips targets that already hold data, and keeps the
// state database and metrics current.
package fetch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jxwalker/assetfetch/internal/classifier"
	"github.com/jxwalker/assetfetch/internal/config"
	"github.com/jxwalker/assetfetch/internal/downloader"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
	"github.com/jxwalker/assetfetch/internal/logging"
	"github.com/jxwalker/assetfetch/internal/metrics"
	"github.com/jxwalker/assetfetch/internal/placer"
	"github.com/jxwalker/assetfetch/internal/resolver"
	"github.com/jxwalker/assetfetch/internal/state"
	"github.com/jxwalker/assetfetch/internal/util"
)

// RootAuto picks the root and subdirectory from the file name.
const RootAuto = "auto"

// Item is one requested download.
type Item struct {
	// URL is an http(s) URL or an hf:// or civitai:// alias.
	URL string
	// Root names a configured root or RootAuto; empty means Output is a full
	// output spec.
	Root   string
	Output string
	// FileName overrides the name derived from URL.
	FileName  string
	SHA256    string
	Headers   map[string]string
	Query     map[string][]string
	ChunkSize int64
	// Force downloads even when a non-empty file is already present.
	Force bool
}

// Outcome describes a finished item.
type Outcome struct {
	Path    string
	Bytes   int64
	SHA256  string
	Skipped bool
}

type Fetcher struct {
	cfg      *config.Config
	log      *logging.Logger
	resolver *placer.Resolver
	mgr      *downloader.Manager
	st       *state.DB
	metrics  *metrics.Manager
	aliases  *resolver.Resolver
}

// New wires a fetcher. st and m may be nil.
func New(cfg *config.Config, log *logging.Logger, r *placer.Resolver, mgr *downloader.Manager, st *state.DB, m *metrics.Manager) *Fetcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Fetcher{cfg: cfg, log: log, resolver: r, mgr: mgr, st: st, metrics: m, aliases: resolver.New(cfg, nil)}
}

// WithAliases replaces the resolver used for hf:// and civitai:// URLs.
func (f *Fetcher) WithAliases(a *resolver.Resolver) *Fetcher {
	f.aliases = a
	return f
}

// Target returns the directory and file path an item would be written to.
func (f *Fetcher) Target(it Item) (placer.ResolvedPath, string, error) {
	var (
		dir placer.ResolvedPath
		err error
	)
	name := it.FileName
	if name == "" {
		if name, err = util.ResolveFilename(it.URL); err != nil {
			return placer.ResolvedPath{}, "", err
		}
	}
	root, output := it.Root, it.Output
	if strings.EqualFold(root, RootAuto) {
		var sub string
		root, sub = classifier.Placement(classifier.Detect(name))
		if output == "" {
			output = sub
		}
	}
	if root != "" {
		dir, err = f.resolver.ResolveNamed(root, output)
	} else {
		dir, err = f.resolver.Resolve(output)
	}
	if err != nil {
		return placer.ResolvedPath{}, "", err
	}
	p, err := dir.Join(name)
	if err != nil {
		return placer.ResolvedPath{}, "", err
	}
	return dir, p, nil
}

// Fetch downloads it unless a usable file is already in place.
// Aliases are resolved first, which for civitai:// costs an API request even
// when the file turns out to be present. History rows are keyed by it.URL as
// given.
func (f *Fetcher) Fetch(ctx context.Context, it Item, sink downloader.Sink) (Outcome, error) {
	key := it.URL
	if resolver.IsAlias(it.URL) {
		res, err := f.aliases.Resolve(ctx, it.URL)
		if err != nil {
			f.recordFailure(key, "", err)
			return Outcome{}, err
		}
		f.log.Debugf("resolved %s -> %s", key, logging.SanitizeURL(res.URL))
		it.URL = res.URL
		if it.FileName == "" {
			it.FileName = res.FileName
		}
	}
	if _, err := util.ParseDownloadURL(it.URL); err != nil {
		f.recordFailure(key, "", err)
		return Outcome{}, err
	}
	dir, path, err := f.Target(it)
	if err != nil {
		f.recordFailure(key, "", err)
		return Outcome{}, err
	}
	log := f.log.With("dest", path)

	if out, ok, err := f.existing(it, path); err != nil {
		f.recordFailure(key, path, err)
		return Outcome{}, err
	} else if ok {
		log.Infof("already present, skipping (%d bytes)", out.Bytes)
		f.metrics.IncDownloadsSkipped()
		f.record(state.DownloadRow{URL: key, Dest: path, ExpectedSHA256: it.SHA256, ActualSHA256: out.SHA256, Size: out.Bytes, Status: state.StatusSkipped})
		return out, nil
	}

	f.record(state.DownloadRow{URL: key, Dest: path, ExpectedSHA256: it.SHA256, Status: state.StatusDownloading})
	start := time.Now()
	res := f.mgr.Download(ctx, downloader.Request{
		URL:            it.URL,
		DestDir:        dir,
		FileName:       it.FileName,
		ChunkSize:      it.ChunkSize,
		Headers:        it.Headers,
		Query:          it.Query,
		ExpectedSHA256: it.SHA256,
	}, sink)
	f.recordRetries(key, path, res.Retries)
	if !res.OK() {
		f.recordFailure(key, path, res.Failed)
		return Outcome{}, res.Failed
	}
	c := res.Completed
	f.metrics.IncDownloadsSuccess()
	f.metrics.ObserveDownloadSeconds(time.Since(start).Seconds())
	f.record(state.DownloadRow{URL: key, Dest: c.FilePath, ExpectedSHA256: it.SHA256, ActualSHA256: c.SHA256, Size: c.ByteCount, Status: state.StatusComplete})
	return Outcome{Path: c.FilePath, Bytes: c.ByteCount, SHA256: c.SHA256}, nil
}

// existing reports whether path already holds a file that satisfies it.
// Zero-byte files are corrupt leftovers and are removed.
func (f *Fetcher) existing(it Item, path string) (Outcome, bool, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Outcome{}, false, nil
	}
	if err != nil {
		return Outcome{}, false, fetcherrors.New(fetcherrors.KindIO, "stat", err)
	}
	if fi.IsDir() {
		return Outcome{}, false, fetcherrors.New(fetcherrors.KindIO, "stat", fmt.Errorf("%s is a directory", path))
	}
	if fi.Size() == 0 {
		f.log.Warnf("removing empty file %s", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return Outcome{}, false, fetcherrors.New(fetcherrors.KindIO, "remove", err)
		}
		return Outcome{}, false, nil
	}
	if it.Force || f.cfg.General.AllowOverwrite {
		return Outcome{}, false, nil
	}
	out := Outcome{Path: path, Bytes: fi.Size(), Skipped: true}
	if it.SHA256 == "" {
		return out, true, nil
	}
	sum, err := util.HashFileSHA256(path)
	if err != nil {
		return Outcome{}, false, fetcherrors.New(fetcherrors.KindIO, "hash", err)
	}
	if !util.EqualSHA256(sum, it.SHA256) {
		f.log.Warnf("existing %s does not match sha256 %s; downloading again", path, it.SHA256)
		return Outcome{}, false, nil
	}
	out.SHA256 = sum
	return out, true, nil
}

func (f *Fetcher) record(row state.DownloadRow) {
	if f.st == nil {
		return
	}
	row.URL = logging.SanitizeURL(row.URL)
	if err := f.st.UpsertDownload(row); err != nil {
		f.log.Warnf("record state: %v", err)
	}
}

func (f *Fetcher) recordRetries(url, dest string, n int) {
	if f.st == nil || n == 0 {
		return
	}
	if err := f.st.IncDownloadRetries(logging.SanitizeURL(url), dest, int64(n)); err != nil {
		f.log.Warnf("record retries: %v", err)
	}
}

func (f *Fetcher) recordFailure(url, dest string, err error) {
	kind := fetcherrors.KindOf(err)
	f.metrics.IncFailures(kind.String())
	if dest == "" {
		return
	}
	f.record(state.DownloadRow{URL: url, Dest: dest, Status: state.StatusFailed, ErrorKind: kind.String(), LastError: err.Error()})
}
