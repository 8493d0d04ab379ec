package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jxwalker/assetfetch/internal/config"
)

// Download statuses recorded in the downloads table.
const (
	StatusDownloading = "downloading"
	StatusComplete    = "complete"
	StatusSkipped     = "skipped"
	StatusFailed      = "failed"

	// Set by verify.
	StatusVerified         = "verified"
	StatusChecksumMismatch = "checksum_mismatch"
)

// IsErrorStatus reports whether status marks a row that needs attention.
func IsErrorStatus(status string) bool {
	return status == StatusFailed || status == StatusChecksumMismatch
}

type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
	Path string
}

// DownloadRow is one (url, dest) pair and the outcome of its latest attempt.
type DownloadRow struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement"`
	URL            string    `gorm:"column:url;not null;uniqueIndex:idx_downloads_url_dest"`
	Dest           string    `gorm:"column:dest;not null;uniqueIndex:idx_downloads_url_dest"`
	ExpectedSHA256 string    `gorm:"column:expected_sha256"`
	ActualSHA256   string    `gorm:"column:actual_sha256"`
	Size           int64     `gorm:"column:size"`
	Status         string    `gorm:"column:status;index"`
	ErrorKind      string    `gorm:"column:error_kind"`
	Retries        int64     `gorm:"column:retries;default:0"`
	LastError      string    `gorm:"column:last_error"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;index"`
}

func (DownloadRow) TableName() string { return "downloads" }

// Open opens (creating if needed) state.db under general.data_root.
func Open(cfg *config.Config) (*DB, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if cfg.General.DataRoot == "" {
		return nil, errors.New("general.data_root required")
	}
	if err := os.MkdirAll(cfg.General.DataRoot, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.General.DataRoot, "state.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serialize batch workers here rather than on SQLITE_BUSY.
	sqldb.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(&DownloadRow{}); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return &DB{Gorm: gdb, SQL: sqldb, Path: path}, nil
}

func (db *DB) Close() error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

// UpsertDownload inserts row or updates the existing (url, dest) entry.
// Retries and CreatedAt of an existing entry are preserved.
func (db *DB) UpsertDownload(row DownloadRow) error {
	row.ID = 0
	row.UpdatedAt = time.Now()
	return db.Gorm.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "url"}, {Name: "dest"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"expected_sha256", "actual_sha256", "size", "status", "error_kind", "last_error", "updated_at",
		}),
	}).Create(&row).Error
}

// IncDownloadRetries increments the retries counter for a download row.
func (db *DB) IncDownloadRetries(url, dest string, delta int64) error {
	if delta == 0 {
		return nil
	}
	return db.Gorm.Model(&DownloadRow{}).
		Where("url = ? AND dest = ?", url, dest).
		UpdateColumn("retries", gorm.Expr("COALESCE(retries, 0) + ?", delta)).Error
}

// GetDownload returns the row for url+dest, or (nil, nil) when absent.
func (db *DB) GetDownload(url, dest string) (*DownloadRow, error) {
	var row DownloadRow
	err := db.Gorm.Where("url = ? AND dest = ?", url, dest).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteDownload removes a download row for the given url+dest.
func (db *DB) DeleteDownload(url, dest string) error {
	return db.Gorm.Where("url = ? AND dest = ?", url, dest).Delete(&DownloadRow{}).Error
}

// ListDownloads returns a snapshot of the downloads table, newest first.
// An empty status lists every row.
func (db *DB) ListDownloads(status string) ([]DownloadRow, error) {
	q := db.Gorm.Order("updated_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []DownloadRow
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
