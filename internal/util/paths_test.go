package util

import (
	"testing"
)

func TestSafeFileName(t *testing.T) {
	cases := map[string]string{
		"foo/bar":                           "foo-bar",
		"foo\\bar":                          "foo-bar",
		"  spaced name  ":                   "spaced-name",
		"2058285?type=Archive&format=Other": "2058285-type-Archive-format-Other",
		"":                                  "download",
		"a b.safetensors":                   "a-b.safetensors",
		"../../etc/passwd":                  "etc-passwd",
	}
	for in, want := range cases {
		got := SafeFileName(in)
		if got != want {
			t.Fatalf("SafeFileName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestURLExt(t *testing.T) {
	cases := map[string]string{
		"https://cdn.example.com/img/Cat.PNG?w=100": ".png",
		"https://cdn.example.com/img/cat":           "",
		"https://cdn.example.com/":                  "",
		"not a url":                                 "",
	}
	for in, want := range cases {
		if got := URLExt(in); got != want {
			t.Fatalf("URLExt(%q)=%q want %q", in, got, want)
		}
	}
}
