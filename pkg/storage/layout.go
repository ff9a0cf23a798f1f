// Package storage owns the on-disk layout of the columnar files and the
// atomic-write primitive used by every writer.
//
// Layout:
//
//	DATA_DIR/<YYYY-MM-DD>/user-<user_id>/{compacted.parquet, part-*.parquet}
//	ARCHIVE_DIR/<YYYY-MM-DD>/user-<user_id>/part-*.parquet.done
//
// Part names embed 32 random hex characters so concurrent writers can never
// collide; directories are created on demand.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	CompactedName = "compacted.parquet"
	partPrefix    = "part-"
	partSuffix    = ".parquet"
	archiveSuffix = ".done"
	userPrefix    = "user-"
)

// UserDay identifies one (user, UTC date) partition.
type UserDay struct {
	UserID string
	Date   string
}

// UserDayDir returns the directory holding the partition's files.
func UserDayDir(dataDir, date, userID string) string {
	return filepath.Join(dataDir, date, userPrefix+userID)
}

// CompactedPath returns the canonical merged file path for a partition.
func CompactedPath(dataDir, date, userID string) string {
	return filepath.Join(UserDayDir(dataDir, date, userID), CompactedName)
}

// NewPartName returns a globally unique part file name (part-<32 hex>.parquet).
func NewPartName() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return partPrefix + hex + partSuffix
}

// ArchivePath returns the destination for an archived part file.
func ArchivePath(archiveDir, date, userID, partName string) string {
	return filepath.Join(archiveDir, date, userPrefix+userID, partName+archiveSuffix)
}

// ListParts returns the sorted part file paths currently present in dir.
// A missing directory yields no parts.
func ListParts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list parts in %s: %w", dir, err)
	}
	var parts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, partPrefix) || !strings.HasSuffix(name, partSuffix) {
			continue
		}
		parts = append(parts, filepath.Join(dir, name))
	}
	sort.Strings(parts)
	return parts, nil
}

// ScanUserDays walks DATA_DIR and returns every (user, date) partition that
// exists on disk.
func ScanUserDays(dataDir string) ([]UserDay, error) {
	dates, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", dataDir, err)
	}
	var out []UserDay
	for _, d := range dates {
		if !d.IsDir() {
			continue
		}
		users, err := os.ReadDir(filepath.Join(dataDir, d.Name()))
		if err != nil {
			continue
		}
		for _, u := range users {
			if !u.IsDir() || !strings.HasPrefix(u.Name(), userPrefix) {
				continue
			}
			out = append(out, UserDay{
				UserID: strings.TrimPrefix(u.Name(), userPrefix),
				Date:   d.Name(),
			})
		}
	}
	return out, nil
}

// ArchivePart moves a consumed part file to its archive location, creating
// directories on demand. A cross-filesystem archive dir is handled by
// copy-then-remove.
func ArchivePart(partPath, dataDir, archiveDir string) (string, error) {
	rel, err := filepath.Rel(dataDir, partPath)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", partPath, err)
	}
	dest := filepath.Join(archiveDir, rel+archiveSuffix)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("archive mkdir for %s: %w", dest, err)
	}
	if err := os.Rename(partPath, dest); err == nil {
		return dest, nil
	}
	b, err := os.ReadFile(partPath)
	if err != nil {
		return "", fmt.Errorf("archive read %s: %w", partPath, err)
	}
	if err := os.WriteFile(dest, b, 0o644); err != nil {
		return "", fmt.Errorf("archive write %s: %w", dest, err)
	}
	if err := os.Remove(partPath); err != nil {
		return "", fmt.Errorf("archive remove %s: %w", partPath, err)
	}
	return dest, nil
}

// Probe verifies the data directory exists and is writable by creating and
// removing a marker file. Used by the health check.
func Probe(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("data dir %s: %w", dataDir, err)
	}
	marker := filepath.Join(dataDir, ".health_check")
	if err := os.WriteFile(marker, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("probe write %s: %w", marker, err)
	}
	if err := os.Remove(marker); err != nil {
		return fmt.Errorf("probe remove %s: %w", marker, err)
	}
	return nil
}
