// Package placer maps output locations onto directories inside the configured roots.
//
// Every directory handed to the downloader is a ResolvedPath. The only way to get
// one is through this package, which guarantees it lies inside an allowed root after
// both lexical normalization and symlink evaluation.
package placer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/jxwalker/assetfetch/internal/config"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
)

// ResolvedPath is an absolute directory verified to lie within Root.
type ResolvedPath struct {
	root string
	dir  string
}

func (p ResolvedPath) Dir() string    { return p.dir }
func (p ResolvedPath) Root() string   { return p.root }
func (p ResolvedPath) String() string { return p.dir }
func (p ResolvedPath) IsZero() bool   { return p.dir == "" }

// Join returns the path of a file named name directly inside the directory.
// name must be a single path element.
func (p ResolvedPath) Join(name string) (string, error) {
	if p.IsZero() {
		return "", fetcherrors.New(fetcherrors.KindPathEscape, "join", errors.New("unresolved directory"))
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`+"\x00") {
		return "", fetcherrors.New(fetcherrors.KindPathEscape, "join", fmt.Errorf("invalid file name %q", name))
	}
	return filepath.Join(p.dir, name), nil
}

// Resolver resolves output specs against a fixed set of named roots.
type Resolver struct {
	roots       map[string]string
	defaultRoot string
}

// New builds a resolver over roots. defaultRoot names the root that bare
// relative specs land under.
func New(roots config.Roots, defaultRoot string) (*Resolver, error) {
	m := roots.Map()
	if len(m) == 0 {
		return nil, errors.New("no roots configured")
	}
	for name, dir := range m {
		if !filepath.IsAbs(dir) {
			return nil, fmt.Errorf("root %s is not absolute: %s", name, dir)
		}
		m[name] = filepath.Clean(dir)
	}
	defaultRoot = strings.ToLower(strings.TrimSpace(defaultRoot))
	if defaultRoot == "" {
		defaultRoot = config.RootOutput
	}
	if _, ok := m[defaultRoot]; !ok {
		return nil, fmt.Errorf("default root %q is not configured", defaultRoot)
	}
	return &Resolver{roots: m, defaultRoot: defaultRoot}, nil
}

// NewFromConfig builds a resolver from cfg.Roots and general.default_root.
func NewFromConfig(cfg *config.Config) (*Resolver, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	return New(cfg.Roots, cfg.General.DefaultRoot)
}

// RootFor returns the directory of a named root.
func (r *Resolver) RootFor(name string) (string, bool) {
	dir, ok := r.roots[strings.ToLower(strings.TrimSpace(name))]
	return dir, ok
}

// ResolveNamed resolves sub under the root called rootName.
func (r *Resolver) ResolveNamed(rootName, sub string) (ResolvedPath, error) {
	root, ok := r.RootFor(rootName)
	if !ok {
		msg := fmt.Sprintf("unknown root %q", rootName)
		if s := r.suggest(rootName); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		return ResolvedPath{}, fetcherrors.New(fetcherrors.KindPathEscape, "resolve", errors.New(msg))
	}
	return ResolveUnder(root, sub)
}

// Resolve accepts:
//   - "" or a bare root name ("models") for the root itself
//   - "<root>:<sub>" for a sub-path of a named root ("models:loras")
//   - an absolute path, only when it lies inside a configured root
//   - any other relative path, under the default root
func (r *Resolver) Resolve(outputSpec string) (ResolvedPath, error) {
	spec := strings.TrimSpace(outputSpec)
	if spec == "" {
		return r.ResolveNamed(r.defaultRoot, "")
	}
	if filepath.IsAbs(spec) {
		root := r.containingRoot(filepath.Clean(spec))
		if root == "" {
			return ResolvedPath{}, fetcherrors.New(fetcherrors.KindPathEscape, "resolve", fmt.Errorf("%s is outside every configured root", spec))
		}
		return ResolveUnder(root, spec)
	}
	if name, sub, ok := strings.Cut(spec, ":"); ok {
		return r.ResolveNamed(name, sub)
	}
	if _, ok := r.RootFor(spec); ok {
		return r.ResolveNamed(spec, "")
	}
	return r.ResolveNamed(r.defaultRoot, spec)
}

// containingRoot picks the deepest root containing p, or "".
func (r *Resolver) containingRoot(p string) string {
	best := ""
	for _, root := range r.roots {
		if within(root, p) && len(root) > len(best) {
			best = root
		}
	}
	return best
}

// suggest proposes the closest root name for a typo.
func (r *Resolver) suggest(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	names := make([]string, 0, len(r.roots))
	for n := range r.roots {
		names = append(names, n)
	}
	sort.Strings(names)
	if ranks := fuzzy.RankFindNormalizedFold(name, names); len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}
	best, bestDist := "", 3
	for _, n := range names {
		if d := fuzzy.LevenshteinDistance(name, n); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// ResolveUnder resolves sub (relative, or absolute inside allowedRoot) to a
// directory inside allowedRoot and creates it. Escapes fail with KindPathEscape,
// filesystem errors with KindIO.
func ResolveUnder(allowedRoot, sub string) (ResolvedPath, error) {
	if !filepath.IsAbs(allowedRoot) {
		return ResolvedPath{}, fetcherrors.New(fetcherrors.KindPathEscape, "resolve", fmt.Errorf("root %q is not absolute", allowedRoot))
	}
	if strings.ContainsRune(sub, 0) {
		return ResolvedPath{}, fetcherrors.New(fetcherrors.KindPathEscape, "resolve", errors.New("path contains NUL"))
	}
	root := filepath.Clean(allowedRoot)
	joined := filepath.Join(root, sub)
	if filepath.IsAbs(sub) {
		joined = filepath.Clean(sub)
	}
	if !within(root, joined) {
		return ResolvedPath{}, fetcherrors.New(fetcherrors.KindPathEscape, "resolve", fmt.Errorf("%q escapes %s", sub, root))
	}
	rel, err := filepath.Rel(root, joined)
	if err != nil {
		return ResolvedPath{}, fetcherrors.New(fetcherrors.KindPathEscape, "resolve", err)
	}
	// SecureJoin walks existing components and re-roots any symlink target. When
	// that matches the lexical join no link is involved; otherwise the link
	// targets are evaluated and must still land inside the root.
	safe, err := securejoin.SecureJoin(root, rel)
	if err != nil {
		return ResolvedPath{}, fetcherrors.New(fetcherrors.KindIO, "resolve", err)
	}
	if safe != joined {
		if err := checkLinks(root, joined); err != nil {
			return ResolvedPath{}, err
		}
	}
	if err := os.MkdirAll(joined, 0o755); err != nil {
		return ResolvedPath{}, fetcherrors.New(fetcherrors.KindIO, "mkdir", err)
	}
	return ResolvedPath{root: root, dir: joined}, nil
}

// checkLinks fails with KindPathEscape unless joined, with every existing
// symlink along it evaluated, stays inside root.
func checkLinks(root, joined string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}
	resolved, err := realPath(joined)
	if err != nil {
		return fetcherrors.New(fetcherrors.KindPathEscape, "resolve", fmt.Errorf("evaluate symlinks in %s: %w", joined, err))
	}
	if !within(realRoot, resolved) {
		return fetcherrors.New(fetcherrors.KindPathEscape, "resolve", fmt.Errorf("%s is redirected by a symlink outside %s (resolves to %s)", joined, root, resolved))
	}
	return nil
}

// realPath evaluates symlinks in the deepest existing ancestor of p and
// appends the components that do not exist yet.
func realPath(p string) (string, error) {
	cur, rest := p, ""
	for {
		if _, err := os.Lstat(cur); err == nil {
			r, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			return filepath.Join(r, rest), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
