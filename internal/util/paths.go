package util

import (
	"path/filepath"
	"strings"
)

// SafeFileName returns a conservative, cross-platform-safe filename.
// It trims spaces, preserves the extension, and replaces any rune not in
// [A-Za-z0-9._-] with '-'. It also collapses duplicate '-' and trims leading/trailing
// separators. Falls back to "download" when empty after cleaning.
func SafeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "download"
	}
	// Preserve extension while cleaning base
	ext := filepath.Ext(name)
	if !safeExt(ext) {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)
	var b strings.Builder
	prevDash := false
	for _, r := range base {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
		if ok {
			b.WriteRune(r)
			prevDash = false
		} else {
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	clean := b.String()
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		clean = "download"
	}
	return clean + ext
}

func safeExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 16 {
		return false
	}
	for _, r := range ext[1:] {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// URLExt returns the lowercase extension of the file name a URL resolves to, or "".
func URLExt(raw string) string {
	name, err := ResolveFilename(raw)
	if err != nil {
		return ""
	}
	ext := filepath.Ext(name)
	if !safeExt(ext) {
		return ""
	}
	return strings.ToLower(ext)
}
