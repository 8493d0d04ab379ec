package classifier

import (
	"testing"

	"github.com/jxwalker/assetfetch/internal/config"
)

func TestDetect(t *testing.T) {
	cases := map[string]string{
		"detail_tweaker_lora.safetensors": LoRA,
		"sdxl_vae.safetensors":            VAE,
		"control_v11p_sd15_canny.pth":     ControlNet,
		"4x-UltraSharp_ESRGAN.pth":        Upscaler,
		"EasyNegative_embedding.pt":       Embedding,
		"dreamshaper_8.safetensors":       Checkpoint,
		"v1-5-pruned.ckpt":                Checkpoint,
		"llama-3-8b.Q4_K_M.gguf":          GGUF,
		"/tmp/input/seed.PNG":             Image,
		"weights.bin":                     Generic,
		"notes.txt":                       Generic,
	}
	for name, want := range cases {
		if got := Detect(name); got != want {
			t.Errorf("Detect(%q) = %s want %s", name, got, want)
		}
	}
}

func TestPlacement(t *testing.T) {
	if root, sub := Placement(LoRA); root != config.RootModels || sub != "loras" {
		t.Fatalf("lora -> %s/%s", root, sub)
	}
	if root, sub := Placement(Image); root != config.RootInput || sub != "" {
		t.Fatalf("image -> %s/%s", root, sub)
	}
	if root, _ := Placement(Generic); root != "" {
		t.Fatalf("generic root=%q want default", root)
	}
}
