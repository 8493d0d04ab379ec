package logging

import (
	"net/url"
	"strings"
)

// secretParams are query keys always dropped from logged URLs.
var secretParams = map[string]bool{
	"key":               true,
	"sig":               true,
	"auth":              true,
	"apikey":            true,
	"api_key":           true,
	"credential":        true,
	"x-amz-credential":  true,
	"x-goog-credential": true,
}

// secretWords drop any query key that contains one of them.
var secretWords = []string{"token", "secret", "signature", "password"}

func isSecretParam(key string) bool {
	k := strings.ToLower(key)
	if secretParams[k] {
		return true
	}
	for _, w := range secretWords {
		if strings.Contains(k, w) {
			return true
		}
	}
	return false
}

// SanitizeURL makes a URL safe to log or store: userinfo, the fragment and
// secret-bearing query parameters are removed, other parameters keep their
// order. Text without a scheme is returned trimmed but otherwise unchanged.
func SanitizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return stripUnparsed(s)
	}
	if u.Scheme == "" {
		return s
	}
	u.User = nil
	u.Fragment, u.RawFragment = "", ""
	if u.RawQuery != "" {
		var kept []string
		for _, part := range strings.Split(u.RawQuery, "&") {
			if part == "" {
				continue
			}
			k, _, _ := strings.Cut(part, "=")
			if name, err := url.QueryUnescape(k); err == nil {
				k = name
			}
			if !isSecretParam(k) {
				kept = append(kept, part)
			}
		}
		u.RawQuery = strings.Join(kept, "&")
	}
	return u.String()
}

// stripUnparsed drops the query, fragment and userinfo from text url.Parse
// rejected, since none of it can be checked key by key.
func stripUnparsed(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return s
	}
	end := strings.IndexByte(rest, '/')
	if end < 0 {
		end = len(rest)
	}
	if at := strings.LastIndexByte(rest[:end], '@'); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}
