package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Root names understood by the path resolver.
const (
	RootModels = "models"
	RootInput  = "input"
	RootTemp   = "temp"
	RootOutput = "output"
)

// RootNames lists the named roots in display order.
var RootNames = []string{RootModels, RootInput, RootTemp, RootOutput}

// DefaultChunkSize is used when concurrency.chunk_size_mb is unset.
const DefaultChunkSize int64 = 1 << 20

// Config mirrors the YAML schema. Minimal validation occurs in Validate().
type Config struct {
	Version     int         `yaml:"version"`
	General     General     `yaml:"general"`
	Roots       Roots       `yaml:"roots"`
	Network     Network     `yaml:"network"`
	Concurrency Concurrency `yaml:"concurrency"`
	Sources     Sources     `yaml:"sources"`
	Logging     Logging     `yaml:"logging"`
	Metrics     Metrics     `yaml:"metrics"`
}

type General struct {
	DataRoot       string `yaml:"data_root"`
	DefaultRoot    string `yaml:"default_root"`    // root used for bare relative output specs
	WriteChecksums bool   `yaml:"write_checksums"` // write <file>.sha256 next to completed downloads
	AllowOverwrite bool   `yaml:"allow_overwrite"` // re-download even when a valid file exists
}

// Roots are the absolute base directories downloads may land in.
type Roots struct {
	Models string `yaml:"models"`
	Input  string `yaml:"input"`
	Temp   string `yaml:"temp"`
	Output string `yaml:"output"`
}

type Network struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	TLSVerify      *bool  `yaml:"tls_verify"`
	UserAgent      string `yaml:"user_agent"`
}

type Concurrency struct {
	GlobalFiles int     `yaml:"global_files"`
	ChunkSizeMB int     `yaml:"chunk_size_mb"`
	MaxRetries  int     `yaml:"max_retries"`
	Backoff     Backoff `yaml:"backoff"`
}

type Backoff struct {
	MinMS  int  `yaml:"min_ms"`
	MaxMS  int  `yaml:"max_ms"`
	Jitter bool `yaml:"jitter"`
}

type Sources struct {
	HuggingFace SourceWithToken `yaml:"huggingface"`
	CivitAI     SourceWithToken `yaml:"civitai"`
}

type SourceWithToken struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
}

type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // human|json
}

type Metrics struct {
	PrometheusTextfile PromTextfile `yaml:"prometheus_textfile"`
}

type PromTextfile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads, parses, expands, and validates a YAML config file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	expanded, err := expandTilde(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	// Expand ${ENV} placeholders before unmarshalling
	b = []byte(os.ExpandEnv(string(b)))
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	base, err := filepath.Abs(filepath.Dir(expanded))
	if err != nil {
		return nil, err
	}
	c.fillRoots(base)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns a ComfyUI-style layout under base: base/models, base/input,
// base/temp and base/output, with state kept in base/.assetfetch.
func Default(base string) *Config {
	c := &Config{Version: 1}
	c.General.DataRoot = filepath.Join(base, ".assetfetch")
	c.fillRoots(base)
	return c
}

// fillRoots defaults any unset root to base/<name>.
func (c *Config) fillRoots(base string) {
	for _, name := range RootNames {
		if p := c.Roots.get(name); p == "" {
			c.Roots.set(name, filepath.Join(base, name))
		}
	}
	if c.General.DefaultRoot == "" {
		c.General.DefaultRoot = RootOutput
	}
}

func (c *Config) expandPaths() error {
	var err error
	if c.General.DataRoot, err = expandTilde(c.General.DataRoot); err != nil {
		return err
	}
	for _, name := range RootNames {
		p, err := expandTilde(c.Roots.get(name))
		if err != nil {
			return fmt.Errorf("roots.%s: %w", name, err)
		}
		c.Roots.set(name, p)
	}
	if c.Metrics.PrometheusTextfile.Path, err = expandTilde(c.Metrics.PrometheusTextfile.Path); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", c.Version)
	}
	if c.General.DataRoot == "" {
		return errors.New("general.data_root is required")
	}
	for _, name := range RootNames {
		p := c.Roots.get(name)
		if p == "" {
			return fmt.Errorf("roots.%s is required", name)
		}
		if !filepath.IsAbs(p) {
			return fmt.Errorf("roots.%s must be an absolute path: %s", name, p)
		}
	}
	if _, ok := c.Roots.RootFor(c.General.DefaultRoot); !ok {
		return fmt.Errorf("general.default_root invalid: %s (want one of %s)", c.General.DefaultRoot, strings.Join(RootNames, ", "))
	}
	if c.Concurrency.ChunkSizeMB < 0 {
		return fmt.Errorf("concurrency.chunk_size_mb must be >= 0")
	}
	if c.Concurrency.MaxRetries < 0 {
		return fmt.Errorf("concurrency.max_retries must be >= 0")
	}
	if c.Concurrency.GlobalFiles < 0 {
		return fmt.Errorf("concurrency.global_files must be >= 0")
	}
	if c.Concurrency.Backoff.MaxMS > 0 && c.Concurrency.Backoff.MinMS > c.Concurrency.Backoff.MaxMS {
		return fmt.Errorf("concurrency.backoff.min_ms must be <= max_ms")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
		// ok
	default:
		return fmt.Errorf("logging.level invalid: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "human", "json":
		// ok
	default:
		return fmt.Errorf("logging.format invalid: %s", c.Logging.Format)
	}
	if c.Metrics.PrometheusTextfile.Enabled && c.Metrics.PrometheusTextfile.Path == "" {
		return errors.New("metrics.prometheus_textfile.path is required when enabled")
	}
	return nil
}

// ChunkSize returns the streaming chunk size in bytes.
func (c *Config) ChunkSize() int64 {
	if c == nil || c.Concurrency.ChunkSizeMB <= 0 {
		return DefaultChunkSize
	}
	return int64(c.Concurrency.ChunkSizeMB) << 20
}

// TLSVerifyEnabled reports whether certificates are verified; it defaults to true.
func (n Network) TLSVerifyEnabled() bool {
	return n.TLSVerify == nil || *n.TLSVerify
}

// RootFor looks up a named root. Names are case-insensitive.
func (r Roots) RootFor(name string) (string, bool) {
	p := r.get(strings.ToLower(strings.TrimSpace(name)))
	return p, p != ""
}

// Map returns name -> absolute directory for every configured root.
func (r Roots) Map() map[string]string {
	out := make(map[string]string, len(RootNames))
	for _, name := range RootNames {
		if p := r.get(name); p != "" {
			out[name] = p
		}
	}
	return out
}

// Names returns the configured root names sorted alphabetically.
func (r Roots) Names() []string {
	var out []string
	for name := range r.Map() {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r Roots) get(name string) string {
	switch name {
	case RootModels:
		return r.Models
	case RootInput:
		return r.Input
	case RootTemp:
		return r.Temp
	case RootOutput:
		return r.Output
	}
	return ""
}

func (r *Roots) set(name, p string) {
	switch name {
	case RootModels:
		r.Models = p
	case RootInput:
		r.Input = p
	case RootTemp:
		r.Temp = p
	case RootOutput:
		r.Output = p
	}
}

func expandTilde(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return h, nil
	}
	return filepath.Join(h, p[2:]), nil
}
