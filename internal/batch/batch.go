// Package batch loads download job lists: YAML job files and JSON prompt manifests.
package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type File struct {
	Version int   `yaml:"version"`
	Jobs    []Job `yaml:"jobs"`
}

// Job is one download. Root and Output follow the fetch command's flags.
type Job struct {
	URI    string `yaml:"uri"`
	Root   string `yaml:"root,omitempty"`
	Output string `yaml:"output,omitempty"`
	Name   string `yaml:"name,omitempty"`
	SHA256 string `yaml:"sha256,omitempty"`
	Force  bool   `yaml:"force,omitempty"`
}

func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if f.Version != 1 {
		return nil, fmt.Errorf("unsupported batch version: %d", f.Version)
	}
	if len(f.Jobs) == 0 {
		return nil, fmt.Errorf("batch has no jobs")
	}
	for i, j := range f.Jobs {
		if strings.TrimSpace(j.URI) == "" {
			return nil, fmt.Errorf("job %d: uri is required", i+1)
		}
	}
	return &f, nil
}

// Save writes f as YAML with two-space indentation.
func Save(path string, f *File) error {
	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// PromptEntry is one image and its caption from a prompt manifest.
type PromptEntry struct {
	ID       string
	ImageURL string
	Prompt   string
}

type promptRecord struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt"`
}

// ParsePrompts decodes a manifest of the form {"<id>": {"image_url": ..., "prompt": ...}}.
// Entries come back sorted by id so exports are reproducible.
func ParsePrompts(b []byte) ([]PromptEntry, error) {
	var raw map[string]promptRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("invalid prompt manifest: %w", err)
	}
	out := make([]PromptEntry, 0, len(raw))
	for id, r := range raw {
		out = append(out, PromptEntry{ID: id, ImageURL: strings.TrimSpace(r.ImageURL), Prompt: r.Prompt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func LoadPrompts(path string) ([]PromptEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePrompts(b)
}

// IsPromptManifest reports whether path should be read with LoadPrompts.
func IsPromptManifest(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
