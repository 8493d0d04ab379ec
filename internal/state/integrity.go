package state

import (
	"fmt"
	"os"
)

// CheckIntegrity runs SQLite's integrity check on the database
func (db *DB) CheckIntegrity() error {
	if db == nil || db.Gorm == nil {
		return fmt.Errorf("database not open")
	}

	var result string
	if err := db.Gorm.Raw("PRAGMA integrity_check").Scan(&result).Error; err != nil {
		return fmt.Errorf("integrity check failed to run: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database integrity check failed: %s", result)
	}
	return nil
}

// Vacuum optimizes the database by reclaiming unused space
func (db *DB) Vacuum() error {
	if db == nil || db.Gorm == nil {
		return fmt.Errorf("database not open")
	}
	if err := db.Gorm.Exec("VACUUM").Error; err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}

// PruneMissing deletes complete, verified and skipped rows whose file no
// longer exists on disk.
func (db *DB) PruneMissing() (int, error) {
	rows, err := db.ListDownloads("")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		switch r.Status {
		case StatusComplete, StatusVerified, StatusSkipped:
		default:
			continue
		}
		if _, err := os.Stat(r.Dest); os.IsNotExist(err) {
			if err := db.DeleteDownload(r.URL, r.Dest); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

type DBStats struct {
	DatabaseSize       int64 // Size in bytes
	Downloads          int64
	CompletedDownloads int64
	SkippedDownloads   int64
	FailedDownloads    int64
	BytesComplete      int64
}

// GetStats retrieves database statistics
func (db *DB) GetStats() (*DBStats, error) {
	if db == nil || db.Gorm == nil {
		return nil, fmt.Errorf("database not open")
	}
	stats := &DBStats{}

	var pageCount, pageSize int64
	if err := db.Gorm.Raw("PRAGMA page_count").Scan(&pageCount).Error; err == nil {
		if err := db.Gorm.Raw("PRAGMA page_size").Scan(&pageSize).Error; err == nil {
			stats.DatabaseSize = pageCount * pageSize
		}
	}

	if err := db.Gorm.Model(&DownloadRow{}).Count(&stats.Downloads).Error; err != nil {
		return nil, fmt.Errorf("failed to count downloads: %w", err)
	}
	counts := []struct {
		statuses []string
		dst      *int64
	}{
		{[]string{StatusComplete, StatusVerified}, &stats.CompletedDownloads},
		{[]string{StatusSkipped}, &stats.SkippedDownloads},
		{[]string{StatusFailed, StatusChecksumMismatch}, &stats.FailedDownloads},
	}
	for _, c := range counts {
		if err := db.Gorm.Model(&DownloadRow{}).Where("status IN ?", c.statuses).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count %v downloads: %w", c.statuses, err)
		}
	}
	if err := db.Gorm.Model(&DownloadRow{}).
		Where("status IN ?", []string{StatusComplete, StatusVerified}).
		Select("COALESCE(SUM(size), 0)").Scan(&stats.BytesComplete).Error; err != nil {
		return nil, fmt.Errorf("failed to sum sizes: %w", err)
	}
	return stats, nil
}
