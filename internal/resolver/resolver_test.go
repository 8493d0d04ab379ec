package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jxwalker/assetfetch/internal/config"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
)

func TestHuggingFaceResolve(t *testing.T) {
	r := New(config.Default(t.TempDir()), nil)
	cases := []struct {
		uri, url, name string
	}{
		{"hf://owner/repo/sub/model.safetensors", "https://huggingface.co/owner/repo/resolve/main/sub/model.safetensors", "model.safetensors"},
		{"hf://gpt2/README.md?rev=v1.0", "https://huggingface.co/gpt2/resolve/v1.0/README.md", "README.md"},
		{"hf://o/r/a b+c.bin", "https://huggingface.co/o/r/resolve/main/a%20b%2Bc.bin", "a b+c.bin"},
	}
	for _, c := range cases {
		res, err := r.Resolve(context.Background(), c.uri)
		if err != nil {
			t.Fatalf("%s: %v", c.uri, err)
		}
		if res.URL != c.url || res.FileName != c.name {
			t.Fatalf("%s: got %q %q want %q %q", c.uri, res.URL, res.FileName, c.url, c.name)
		}
	}
}

func TestHuggingFaceRejectsMalformed(t *testing.T) {
	r := New(nil, nil)
	for _, uri := range []string{"hf://only", "hf://o/r/../x", "hf://o//x"} {
		if _, err := r.Resolve(context.Background(), uri); fetcherrors.KindOf(err) != fetcherrors.KindInvalidURL {
			t.Fatalf("%s: err=%v want invalid_url", uri, err)
		}
	}
}

func TestIsAlias(t *testing.T) {
	if !IsAlias("hf://a/b") || !IsAlias(" civitai://model/1") {
		t.Fatalf("aliases not recognised")
	}
	if IsAlias("https://huggingface.co/a/b") {
		t.Fatalf("https is not an alias")
	}
}

func civitServer(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var auth string
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		dl := srv.URL + "/dl/"
		switch {
		case r.URL.Path == "/api/v1/models/123":
			_, _ = w.Write([]byte(`{"name":"Detail","modelVersions":[
			  {"id":11,"files":[{"id":1,"name":"v11.safetensors","type":"Model","primary":true,"downloadUrl":"` + dl + `a.bin"}]},
			  {"id":12,"files":[
			    {"id":2,"name":"v12.primary.safetensors","type":"Model","primary":true,"downloadUrl":"` + dl + `primary.bin"},
			    {"id":3,"name":"v12.vae.pt","type":"VAE","primary":false,"downloadUrl":"` + dl + `vae.bin"}]}]}`))
		case r.URL.Path == "/api/v1/models/7":
			_, _ = w.Write([]byte(`{"name":"Empty","modelVersions":[]}`))
		case r.URL.Path == "/api/v1/model-versions/12":
			_, _ = w.Write([]byte(`{"id":12,"modelId":123,"files":[{"id":9,"name":"mv.safetensors","type":"Model","primary":true,"downloadUrl":"` + dl + `mv.bin"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &auth
}

func TestCivitAIResolve(t *testing.T) {
	srv, auth := civitServer(t)
	cfg := config.Default(t.TempDir())
	cfg.Sources.CivitAI.TokenEnv = "TEST_CIVITAI_TOKEN"
	r := New(cfg, srv.Client()).WithBaseURLs("", srv.URL)
	r.getenv = func(k string) string {
		if k == "TEST_CIVITAI_TOKEN" {
			return "XYZ"
		}
		return ""
	}
	ctx := context.Background()

	res, err := r.Resolve(ctx, "civitai://model/123")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !strings.HasSuffix(res.URL, "/dl/primary.bin") || res.FileName != "v12.primary.safetensors" {
		t.Fatalf("latest: %+v", res)
	}
	if *auth != "Bearer XYZ" {
		t.Fatalf("auth header %q", *auth)
	}

	res, err = r.Resolve(ctx, "civitai://model/123?file=VAE")
	if err != nil || !strings.HasSuffix(res.URL, "/dl/vae.bin") {
		t.Fatalf("file filter: %+v %v", res, err)
	}

	res, err = r.Resolve(ctx, "civitai://model/123?version=12")
	if err != nil || !strings.HasSuffix(res.URL, "/dl/mv.bin") || res.FileName != "mv.safetensors" {
		t.Fatalf("version: %+v %v", res, err)
	}
}

func TestCivitAIErrors(t *testing.T) {
	srv, _ := civitServer(t)
	r := New(nil, srv.Client()).WithBaseURLs("", srv.URL)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "civitai://model/999"); fetcherrors.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("missing model: %v", err)
	}
	if _, err := r.Resolve(ctx, "civitai://model/7"); fetcherrors.KindOf(err) != fetcherrors.KindHTTP {
		t.Fatalf("no versions: %v", err)
	}
	for _, uri := range []string{"civitai://model", "civitai://model/abc", "civitai://lora/1"} {
		if _, err := r.Resolve(ctx, uri); fetcherrors.KindOf(err) != fetcherrors.KindInvalidURL {
			t.Fatalf("%s: %v", uri, err)
		}
	}
	if _, err := r.Resolve(ctx, "ftp://x/y"); fetcherrors.KindOf(err) != fetcherrors.KindInvalidURL {
		t.Fatalf("unknown scheme: %v", err)
	}
}
