package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	friendlyerrors "github.com/jxwalker/assetfetch/internal/errors"
)

// ValidationError represents a detailed config validation error
type ValidationError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Config validation error in '%s': %s", e.Field, e.Message)
}

// ValidateDetailed reports problems Validate tolerates but a user should hear about:
// overlapping roots, odd tuning values and missing source tokens.
func (c *Config) ValidateDetailed() []ValidationError {
	var errs []ValidationError

	// Roots must not nest; a download under one root would silently land in another.
	roots := c.Roots.Map()
	for _, a := range RootNames {
		for _, b := range RootNames {
			if a == b || roots[a] == "" || roots[b] == "" {
				continue
			}
			rel, err := filepath.Rel(roots[a], roots[b])
			if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
				errs = append(errs, ValidationError{
					Field:      "roots." + b,
					Value:      roots[b],
					Message:    fmt.Sprintf("Nested inside roots.%s (%s)", a, roots[a]),
					Suggestion: "Point each root at a separate directory",
				})
			}
		}
	}

	if c.Concurrency.ChunkSizeMB > 1000 {
		errs = append(errs, ValidationError{
			Field:      "concurrency.chunk_size_mb",
			Value:      c.Concurrency.ChunkSizeMB,
			Message:    "Must be at most 1000 MB",
			Suggestion: "Each chunk is held in memory; 1-16 MB is plenty",
		})
	}

	if c.Concurrency.MaxRetries > 20 {
		errs = append(errs, ValidationError{
			Field:      "concurrency.max_retries",
			Value:      c.Concurrency.MaxRetries,
			Message:    "Unusually high (>20 retries)",
			Suggestion: "Recommended: 3-5 retries",
		})
	}

	if c.Concurrency.GlobalFiles > 16 {
		errs = append(errs, ValidationError{
			Field:      "concurrency.global_files",
			Value:      c.Concurrency.GlobalFiles,
			Message:    "Unusually high (>16 parallel files)",
			Suggestion: "Most hosts throttle parallel downloads. Try 1-4.",
		})
	}

	// Network checks
	if c.Network.TimeoutSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:      "network.timeout_seconds",
			Value:      c.Network.TimeoutSeconds,
			Message:    "Must be >= 0 (0 disables the overall timeout)",
			Suggestion: "Large model files need long transfers; 0 or >= 600 is typical",
		})
	}

	if !c.Network.TLSVerifyEnabled() {
		errs = append(errs, ValidationError{
			Field:      "network.tls_verify",
			Value:      false,
			Message:    "TLS verification is disabled",
			Suggestion: "Only disable verification behind a trusted intercepting proxy",
		})
	}

	// Check token environment variables are set if sources are enabled
	if c.Sources.HuggingFace.Enabled {
		tokenEnv := c.Sources.HuggingFace.TokenEnv
		if tokenEnv == "" {
			tokenEnv = "HF_TOKEN"
		}
		if os.Getenv(tokenEnv) == "" {
			errs = append(errs, ValidationError{
				Field:      "sources.huggingface",
				Message:    fmt.Sprintf("HuggingFace enabled but %s not set", tokenEnv),
				Suggestion: fmt.Sprintf("Set the token:\n  export %s=hf_...\n  Get one at: https://huggingface.co/settings/tokens", tokenEnv),
			})
		}
	}

	if c.Sources.CivitAI.Enabled {
		tokenEnv := c.Sources.CivitAI.TokenEnv
		if tokenEnv == "" {
			tokenEnv = "CIVITAI_TOKEN"
		}
		if os.Getenv(tokenEnv) == "" {
			errs = append(errs, ValidationError{
				Field:      "sources.civitai",
				Message:    fmt.Sprintf("CivitAI enabled but %s not set", tokenEnv),
				Suggestion: fmt.Sprintf("Set the token:\n  export %s=...\n  Get one at: https://civitai.com/user/account", tokenEnv),
			})
		}
	}

	return errs
}

// ValidateWithFriendlyErrors returns a user-friendly validation error
func (c *Config) ValidateWithFriendlyErrors() error {
	// Run standard validation first
	if err := c.Validate(); err != nil {
		return err
	}

	errs := c.ValidateDetailed()
	if len(errs) == 0 {
		return nil
	}

	var msg strings.Builder
	msg.WriteString("Configuration validation failed:\n\n")

	for i, err := range errs {
		msg.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
		if err.Value != nil {
			msg.WriteString(fmt.Sprintf("   Current value: %v\n", err.Value))
		}
		if err.Suggestion != "" {
			lines := strings.Split(err.Suggestion, "\n")
			for _, line := range lines {
				msg.WriteString(fmt.Sprintf("   → %s\n", line))
			}
		}
		msg.WriteString("\n")
	}

	return friendlyerrors.NewFriendlyError(
		"Config validation failed",
		msg.String(),
	).WithDocs("https://github.com/jxwalker/assetfetch#configuration")
}
