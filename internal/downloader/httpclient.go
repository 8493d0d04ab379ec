package downloader

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	neturl "net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/jxwalker/assetfetch/internal/config"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
	"github.com/jxwalker/assetfetch/internal/logging"
)

func newHTTPClient(cfg *config.Config) *http.Client {
	// The timeout bounds waiting for response headers only; model files can take
	// far longer than any sane whole-request timeout to stream.
	headerTimeout := time.Duration(cfg.Network.TimeoutSeconds) * time.Second
	if headerTimeout <= 0 {
		headerTimeout = 60 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !cfg.Network.TLSVerifyEnabled(),
		},
	}
	client := &http.Client{Transport: tr}
	// Preserve the User-Agent across redirects. Avoid leaking Authorization across hosts.
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after %d redirects", len(via))
		}
		prev := via[len(via)-1]
		if ua := prev.Header.Get("User-Agent"); ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		if prev.URL != nil && req.URL != nil && strings.EqualFold(prev.URL.Host, req.URL.Host) {
			if auth := prev.Header.Get("Authorization"); auth != "" {
				req.Header.Set("Authorization", auth)
			}
		} else {
			req.Header.Del("Authorization")
		}
		return nil
	}
	return client
}

// userAgent returns the configured User-Agent, or a sensible default
// like "assetfetch/<version> (<goos>/<goarch>)" when not set.
func userAgent(cfg *config.Config) string {
	if cfg != nil && cfg.Network.UserAgent != "" {
		return cfg.Network.UserAgent
	}
	return fmt.Sprintf("assetfetch/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// Version is stamped by cmd/assetfetch at startup.
var Version = "dev"

// sourceToken returns an API token for hosts that accept one from the environment.
func sourceToken(cfg *config.Config, host string) string {
	switch {
	case hostIs(host, "huggingface.co"):
		return os.Getenv(tokenEnv(cfg.Sources.HuggingFace.TokenEnv, "HF_TOKEN"))
	case hostIs(host, "civitai.com"):
		return os.Getenv(tokenEnv(cfg.Sources.CivitAI.TokenEnv, "CIVITAI_TOKEN"))
	}
	return ""
}

func tokenEnv(configured, def string) string {
	if s := strings.TrimSpace(configured); s != "" {
		return s
	}
	return def
}

// open issues the GET, retrying connection failures, 429 and 5xx responses
// before any byte has been written. It returns a 2xx response or a classified
// error, plus the number of retries spent.
func (m *Manager) open(ctx context.Context, u *neturl.URL, r Request) (*http.Response, int, *fetcherrors.Error) {
	target := *u
	if len(r.Query) > 0 {
		q := target.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}
	attempts := m.cfg.Concurrency.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, attempt - 1, fetcherrors.New(fetcherrors.KindInvalidURL, "request", err)
		}
		req.Header.Set("User-Agent", userAgent(m.cfg))
		for k, v := range r.Headers {
			req.Header.Set(k, v)
		}
		if req.Header.Get("Authorization") == "" {
			if tok := sourceToken(m.cfg, target.Hostname()); tok != "" {
				req.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		hadAuth := req.Header.Get("Authorization") != ""

		resp, err := m.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, attempt - 1, fetcherrors.New(fetcherrors.KindCancelled, "GET", ctx.Err())
			}
			if attempt < attempts {
				if werr := m.backoff(ctx, attempt, 0, err); werr != nil {
					return nil, attempt, werr
				}
				continue
			}
			return nil, attempt - 1, fetcherrors.New(fetcherrors.KindNetwork, "GET", err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, attempt - 1, nil
		}
		_ = resp.Body.Close()
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if retryable && attempt < attempts {
			after := parseRetryAfter(resp.Header.Get("Retry-After"))
			if werr := m.backoff(ctx, attempt, after, fmt.Errorf("%s", resp.Status)); werr != nil {
				return nil, attempt, werr
			}
			continue
		}
		msg := friendlyHTTPStatusMessage(m.cfg, target.Hostname(), resp.StatusCode, resp.Status, hadAuth)
		return nil, attempt - 1, fetcherrors.HTTPStatus("GET "+logging.SanitizeURL(target.String()), resp.StatusCode, msg)
	}
}

// backoff waits before retry number attempt. A positive hint (Retry-After) wins
// over the computed delay but is still capped at backoff.max_ms.
func (m *Manager) backoff(ctx context.Context, attempt int, hint time.Duration, cause error) *fetcherrors.Error {
	b := m.cfg.Concurrency.Backoff
	minD := time.Duration(b.MinMS) * time.Millisecond
	if minD <= 0 {
		minD = 500 * time.Millisecond
	}
	maxD := time.Duration(b.MaxMS) * time.Millisecond
	if maxD <= 0 {
		maxD = 30 * time.Second
	}
	d := minD << (attempt - 1)
	if d <= 0 || d > maxD {
		d = maxD
	}
	if b.Jitter {
		d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
	}
	if hint > 0 {
		d = hint
		if d > maxD {
			d = maxD
		}
	}
	if m.metrics != nil {
		m.metrics.IncRetries(1)
	}
	m.log.Warnf("retry %d in %s: %v", attempt, d, cause)
	if err := m.sleep(ctx, d); err != nil {
		return fetcherrors.New(fetcherrors.KindCancelled, "backoff", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
