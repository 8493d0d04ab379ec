package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashFileSHA256(t *testing.T) {
	p := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(p, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := HashFileSHA256(p)
	if err != nil {
		t.Fatal(err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("sha=%s", got)
	}
	if !EqualSHA256(strings.ToUpper(want)+"\n", got) {
		t.Fatalf("EqualSHA256 should ignore case and space")
	}
	if !ValidSHA256(want) || ValidSHA256("abc") || ValidSHA256(strings.Repeat("z", 64)) {
		t.Fatalf("ValidSHA256 mismatch")
	}
}
