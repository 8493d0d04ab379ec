package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jxwalker/assetfetch/internal/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.Default(t.TempDir()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenRequiresDataRoot(t *testing.T) {
	if _, err := Open(&config.Config{}); err == nil {
		t.Fatalf("expected error without data_root")
	}
	if _, err := Open(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestUpsertAndList(t *testing.T) {
	db := openTestDB(t)
	row := DownloadRow{URL: "https://example.com/a.bin", Dest: "/data/a.bin", Status: StatusDownloading}
	if err := db.UpsertDownload(row); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.IncDownloadRetries(row.URL, row.Dest, 2); err != nil {
		t.Fatalf("retries: %v", err)
	}
	row.Status = StatusComplete
	row.Size = 42
	row.ActualSHA256 = "abc"
	if err := db.UpsertDownload(row); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := db.UpsertDownload(DownloadRow{URL: "https://example.com/b.bin", Dest: "/data/b.bin", Status: StatusFailed, ErrorKind: "http", LastError: "404"}); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	all, err := db.ListDownloads("")
	if err != nil || len(all) != 2 {
		t.Fatalf("list = %d rows, err=%v", len(all), err)
	}
	done, err := db.ListDownloads(StatusComplete)
	if err != nil || len(done) != 1 {
		t.Fatalf("complete rows = %d, err=%v", len(done), err)
	}
	got := done[0]
	if got.Size != 42 || got.ActualSHA256 != "abc" || got.Retries != 2 {
		t.Fatalf("row = %+v", got)
	}

	r, err := db.GetDownload("https://example.com/b.bin", "/data/b.bin")
	if err != nil || r == nil || r.ErrorKind != "http" {
		t.Fatalf("get = %+v, %v", r, err)
	}
	if r, err := db.GetDownload("https://nope", "/x"); r != nil || err != nil {
		t.Fatalf("missing row = %+v, %v", r, err)
	}

	if err := db.DeleteDownload(row.URL, row.Dest); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if all, _ := db.ListDownloads(""); len(all) != 1 {
		t.Fatalf("expected 1 row after delete, got %d", len(all))
	}
}

func TestStatsAndIntegrity(t *testing.T) {
	db := openTestDB(t)
	_ = db.UpsertDownload(DownloadRow{URL: "u1", Dest: "d1", Status: StatusComplete, Size: 10})
	_ = db.UpsertDownload(DownloadRow{URL: "u2", Dest: "d2", Status: StatusComplete, Size: 5})
	_ = db.UpsertDownload(DownloadRow{URL: "u3", Dest: "d3", Status: StatusSkipped})
	_ = db.UpsertDownload(DownloadRow{URL: "u4", Dest: "d4", Status: StatusFailed})

	st, err := db.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Downloads != 4 || st.CompletedDownloads != 2 || st.SkippedDownloads != 1 || st.FailedDownloads != 1 || st.BytesComplete != 15 {
		t.Fatalf("stats = %+v", st)
	}
	if err := db.CheckIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
	if err := db.Vacuum(); err != nil {
		t.Fatalf("vacuum: %v", err)
	}
}

func TestPruneMissing(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	present := filepath.Join(dir, "present.bin")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = db.UpsertDownload(DownloadRow{URL: "u1", Dest: present, Status: StatusComplete})
	_ = db.UpsertDownload(DownloadRow{URL: "u2", Dest: filepath.Join(dir, "gone.bin"), Status: StatusComplete})

	n, err := db.PruneMissing()
	if err != nil || n != 1 {
		t.Fatalf("pruned %d, err=%v", n, err)
	}
	rows, _ := db.ListDownloads("")
	if len(rows) != 1 || rows[0].Dest != present {
		t.Fatalf("rows = %+v", rows)
	}
}
