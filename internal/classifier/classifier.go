// Package classifier guesses what kind of asset a file name refers to and
// where a ComfyUI-style layout keeps it.
package classifier

import (
	"path/filepath"
	"strings"

	"github.com/jxwalker/assetfetch/internal/config"
)

// Artifact types.
const (
	Checkpoint = "sd.checkpoint"
	LoRA       = "sd.lora"
	VAE        = "sd.vae"
	ControlNet = "sd.controlnet"
	Embedding  = "sd.embedding"
	Upscaler   = "sd.upscaler"
	GGUF       = "llm.gguf"
	Image      = "image"
	Generic    = "generic"
)

// Detect classifies a file by name alone, so it can run before anything is
// downloaded.
func Detect(fileName string) string {
	name := strings.ToLower(filepath.Base(fileName))
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(name, s) {
				return true
			}
		}
		return false
	}
	switch filepath.Ext(name) {
	case ".gguf":
		return GGUF
	case ".ckpt":
		return Checkpoint
	case ".safetensors", ".pth", ".pt", ".bin":
		switch {
		case has("lora", "lycoris", "locon"):
			return LoRA
		case has("vae"):
			return VAE
		case has("controlnet", "control_"):
			return ControlNet
		case has("esrgan", "upscale", "swinir"):
			return Upscaler
		case has("embed", "textual_inversion"):
			return Embedding
		case filepath.Ext(name) == ".safetensors":
			// Ambiguous safetensors are most often full checkpoints.
			return Checkpoint
		}
		return Generic
	case ".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp":
		return Image
	}
	return Generic
}

// Placement returns the root and subdirectory typ is stored under. Generic
// files get an empty root, meaning the configured default.
func Placement(typ string) (root, sub string) {
	switch typ {
	case Checkpoint:
		return config.RootModels, "checkpoints"
	case LoRA:
		return config.RootModels, "loras"
	case VAE:
		return config.RootModels, "vae"
	case ControlNet:
		return config.RootModels, "controlnet"
	case Embedding:
		return config.RootModels, "embeddings"
	case Upscaler:
		return config.RootModels, "upscale_models"
	case GGUF:
		return config.RootModels, "llm"
	case Image:
		return config.RootInput, ""
	}
	return "", ""
}
