package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jxwalker/assetfetch/internal/config"
	"github.com/jxwalker/assetfetch/internal/downloader"
	"github.com/jxwalker/assetfetch/internal/fetch"
	"github.com/jxwalker/assetfetch/internal/logging"
	"github.com/jxwalker/assetfetch/internal/metrics"
	"github.com/jxwalker/assetfetch/internal/placer"
	"github.com/jxwalker/assetfetch/internal/state"
)

// app holds everything a command needs, built from the resolved config.
type app struct {
	cfg      *config.Config
	cfgPath  string
	log      *logging.Logger
	resolver *placer.Resolver
	st       *state.DB
	metrics  *metrics.Manager
	fetcher  *fetch.Fetcher
}

// configPath picks --config, then ASSETFETCH_CONFIG, then the per-user file
// when it exists. An empty result means built-in defaults.
func configPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if env := strings.TrimSpace(os.Getenv("ASSETFETCH_CONFIG")); env != "" {
		return env
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		p := filepath.Join(h, ".config", "assetfetch", "config.yml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadConfig loads the config file, or a default layout under the working
// directory when none is configured.
func loadConfig(g *globalFlags) (*config.Config, string, error) {
	p := configPath(g.configPath)
	if p == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		return config.Default(wd), "", nil
	}
	c, err := config.Load(p)
	if err != nil {
		return nil, p, fmt.Errorf("load config %s: %w", p, err)
	}
	return c, p, nil
}

func newLogger(g *globalFlags, c *config.Config) *logging.Logger {
	level := g.logLevel
	if level == "" && c != nil {
		level = c.Logging.Level
	}
	jsonOut := g.jsonLogs || (c != nil && strings.EqualFold(c.Logging.Format, "json"))
	// stdout is reserved for command output.
	return logging.NewWithWriter(level, jsonOut, os.Stderr)
}

// openApp loads config and wires the fetch stack. State is optional for
// downloads: a broken database is logged and downloads still run.
func openApp(g *globalFlags) (*app, error) {
	c, p, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	log := newLogger(g, c)
	r, err := placer.NewFromConfig(c)
	if err != nil {
		return nil, err
	}
	st, err := state.Open(c)
	if err != nil {
		log.Warnf("state database unavailable, history will not be recorded: %v", err)
		st = nil
	}
	m := metrics.New(c)
	mgr := downloader.NewManager(c, log, m)
	return &app{
		cfg:      c,
		cfgPath:  p,
		log:      log,
		resolver: r,
		st:       st,
		metrics:  m,
		fetcher:  fetch.New(c, log, r, mgr, st, m),
	}, nil
}

func (a *app) Close() {
	if err := a.metrics.Write(); err != nil {
		a.log.Warnf("write metrics: %v", err)
	}
	if a.st != nil {
		_ = a.st.Close()
	}
}

// openState loads config and opens only the state database.
func openState(g *globalFlags) (*config.Config, *logging.Logger, *state.DB, error) {
	c, _, err := loadConfig(g)
	if err != nil {
		return nil, nil, nil, err
	}
	log := newLogger(g, c)
	st, err := state.Open(c)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open state db: %w", err)
	}
	return c, log, st, nil
}
