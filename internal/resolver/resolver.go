// Package resolver turns source alias URIs (hf://, civitai://) into direct
// download URLs.
package resolver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jxwalker/assetfetch/internal/config"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
)

// Resolved is the direct download behind an alias URI.
type Resolved struct {
	URL string
	// FileName is the name the source suggests; empty means derive it from URL.
	FileName string
}

// Resolver resolves alias URIs. The zero value is not usable; call New.
type Resolver struct {
	cfg         *config.Config
	client      *http.Client
	hfBase      string
	civitaiBase string
	getenv      func(string) string
}

// New returns a resolver talking to the public Hugging Face and CivitAI
// hosts. A nil client gets a 30s timeout.
func New(cfg *config.Config, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Resolver{
		cfg:         cfg,
		client:      client,
		hfBase:      "https://huggingface.co",
		civitaiBase: "https://civitai.com",
		getenv:      os.Getenv,
	}
}

// WithBaseURLs points resolution at other hosts. Empty values keep the default.
func (r *Resolver) WithBaseURLs(huggingFace, civitAI string) *Resolver {
	if huggingFace != "" {
		r.hfBase = strings.TrimRight(huggingFace, "/")
	}
	if civitAI != "" {
		r.civitaiBase = strings.TrimRight(civitAI, "/")
	}
	return r
}

// IsAlias reports whether uri uses a scheme Resolve understands.
func IsAlias(uri string) bool {
	uri = strings.TrimSpace(uri)
	return strings.HasPrefix(uri, hfScheme) || strings.HasPrefix(uri, civitaiScheme)
}

// Resolve maps an alias URI to a direct URL. Malformed aliases fail with
// KindInvalidURL before any request is made.
func (r *Resolver) Resolve(ctx context.Context, uri string) (*Resolved, error) {
	uri = strings.TrimSpace(uri)
	switch {
	case strings.HasPrefix(uri, hfScheme):
		return r.huggingFace(uri)
	case strings.HasPrefix(uri, civitaiScheme):
		return r.civitAI(ctx, uri)
	}
	return nil, fetcherrors.New(fetcherrors.KindInvalidURL, "resolve", errors.New("no resolver for uri scheme"))
}

func invalid(msg string) error {
	return fetcherrors.New(fetcherrors.KindInvalidURL, "resolve", errors.New(msg))
}

func splitQuery(s string) (string, string) {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}
