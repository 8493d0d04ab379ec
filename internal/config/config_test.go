package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCfg(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFillsRootsNextToConfig(t *testing.T) {
	tmp := t.TempDir()
	p := writeCfg(t, tmp,
		"version: 1",
		"general:",
		"  data_root: \""+tmp+"/data\"",
		"roots:",
		"  models: \""+tmp+"/ComfyUI/models\"",
	)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Roots.Models != filepath.Join(tmp, "ComfyUI", "models") {
		t.Fatalf("models root: %s", c.Roots.Models)
	}
	if c.Roots.Output != filepath.Join(tmp, "output") {
		t.Fatalf("output root should default next to config, got %s", c.Roots.Output)
	}
	if c.General.DefaultRoot != RootOutput {
		t.Fatalf("default root: %s", c.General.DefaultRoot)
	}
	if c.ChunkSize() != DefaultChunkSize {
		t.Fatalf("chunk size: %d", c.ChunkSize())
	}
	if !c.Network.TLSVerifyEnabled() {
		t.Fatalf("tls verify should default on")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("ASSETFETCH_TEST_BASE", tmp)
	p := writeCfg(t, tmp,
		"version: 1",
		"general:",
		"  data_root: \"${ASSETFETCH_TEST_BASE}/data\"",
		"concurrency:",
		"  chunk_size_mb: 4",
	)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.General.DataRoot != tmp+"/data" {
		t.Fatalf("data_root not expanded: %s", c.General.DataRoot)
	}
	if c.ChunkSize() != 4<<20 {
		t.Fatalf("chunk size: %d", c.ChunkSize())
	}
}

func TestValidateRejects(t *testing.T) {
	tmp := t.TempDir()
	cases := map[string][]string{
		"version":      {"version: 2", "general:", "  data_root: /x"},
		"data_root":    {"version: 1"},
		"default_root": {"version: 1", "general:", "  data_root: /x", "  default_root: nowhere"},
		"relative":     {"version: 1", "general:", "  data_root: /x", "roots:", "  temp: rel/temp"},
		"log level":    {"version: 1", "general:", "  data_root: /x", "logging:", "  level: loud"},
		"backoff":      {"version: 1", "general:", "  data_root: /x", "concurrency:", "  backoff:", "    min_ms: 10", "    max_ms: 5"},
	}
	for name, lines := range cases {
		dir := filepath.Join(tmp, strings.ReplaceAll(name, " ", "_"))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(writeCfg(t, dir, lines...)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestDefaultLayout(t *testing.T) {
	c := Default("/srv/comfy")
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	want := map[string]string{
		"models": "/srv/comfy/models",
		"input":  "/srv/comfy/input",
		"temp":   "/srv/comfy/temp",
		"output": "/srv/comfy/output",
	}
	for name, dir := range want {
		got, ok := c.Roots.RootFor(strings.ToUpper(name))
		if !ok || got != dir {
			t.Fatalf("RootFor(%s)=%q,%v want %q", name, got, ok, dir)
		}
	}
	if _, ok := c.Roots.RootFor("loras"); ok {
		t.Fatalf("unknown root should not resolve")
	}
	if got := strings.Join(c.Roots.Names(), ","); got != "input,models,output,temp" {
		t.Fatalf("names: %s", got)
	}
}

func TestValidateDetailedNestedRoots(t *testing.T) {
	c := Default("/srv/comfy")
	c.Roots.Temp = "/srv/comfy/output/tmp"
	errs := c.ValidateDetailed()
	found := false
	for _, e := range errs {
		if e.Field == "roots.temp" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected nested root warning, got %+v", errs)
	}
	if err := c.ValidateWithFriendlyErrors(); err == nil {
		t.Fatalf("expected friendly error")
	}
}
