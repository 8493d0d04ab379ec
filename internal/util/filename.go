package util

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
)

// ParseDownloadURL parses raw and requires an absolute http(s) URL with a host.
func ParseDownloadURL(raw string) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fetcherrors.New(fetcherrors.KindInvalidURL, "parse url", errors.New("empty url"))
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fetcherrors.New(fetcherrors.KindInvalidURL, "parse url", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fetcherrors.New(fetcherrors.KindInvalidURL, "parse url", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, fetcherrors.New(fetcherrors.KindInvalidURL, "parse url", errors.New("missing host"))
	}
	return u, nil
}

// ResolveFilename derives the local file name for a download URL: the final path
// segment, percent-decoded, cut at the first '?' in case a query leaked into the
// path. URLs without a usable segment get FallbackFilename.
func ResolveFilename(raw string) (string, error) {
	u, err := ParseDownloadURL(raw)
	if err != nil {
		return "", err
	}
	p := u.EscapedPath()
	seg := p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		seg = p[i+1:]
	}
	name, err := url.PathUnescape(seg)
	if err != nil {
		return "", fetcherrors.New(fetcherrors.KindInvalidURL, "decode path", err)
	}
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	// %2F and %5C decode to separators; only the part after the last one is a name.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return FallbackFilename(raw), nil
	}
	return name, nil
}

// FallbackFilename is a deterministic name for URLs that carry no file name.
func FallbackFilename(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return "download-" + hex.EncodeToString(sum[:])[:12]
}
