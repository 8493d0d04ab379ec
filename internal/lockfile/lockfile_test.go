package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireExclusive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.safetensors.lock")
	l, err := Acquire(p)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := Acquire(p); !errors.Is(err, ErrLocked) {
		t.Fatalf("second acquire should report ErrLocked, got %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("lock file should be gone")
	}
	l2, err := Acquire(p)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = l2.Release()
	// Double release is harmless.
	if err := l2.Release(); err != nil {
		t.Fatalf("double release: %v", err)
	}
}

func TestAcquireClearsStale(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"dead.lock":    "99999999\n",
		"garbage.lock": "not-a-pid",
	} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		l, err := Acquire(p)
		if err != nil {
			t.Fatalf("%s: stale lock should be cleared: %v", name, err)
		}
		_ = l.Release()
	}
}

func TestAcquireMissingDir(t *testing.T) {
	_, err := Acquire(filepath.Join(t.TempDir(), "nope", "x.lock"))
	if err == nil || errors.Is(err, ErrLocked) {
		t.Fatalf("expected plain create error, got %v", err)
	}
}
