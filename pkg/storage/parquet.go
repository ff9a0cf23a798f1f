package storage

import (
	"fmt"
	"os"
	"path/filepath"

	natomic "github.com/natefinch/atomic"
	"github.com/parquet-go/parquet-go"

	"heartbeat/pkg/schema"
)

// WriteRows writes rows to dest atomically: the full, well-formed parquet
// file becomes visible at dest or dest is left unchanged. The temp file is
// created in the destination directory so the final rename never crosses a
// filesystem boundary.
func WriteRows(dest string, rows []schema.Row) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.parquet.partial")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", dest, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		_ = os.Remove(tmpName)
	}

	w := parquet.NewGenericWriter[schema.Row](tmp)
	if _, err := w.Write(rows); err != nil {
		cleanup()
		return fmt.Errorf("parquet write %s: %w", dest, err)
	}
	if err := w.Close(); err != nil {
		cleanup()
		return fmt.Errorf("parquet finalize %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp for %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", dest, err)
	}
	if err := natomic.ReplaceFile(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	return nil
}

// WritePart writes one part file for a (user, date) partition and returns
// its path.
func WritePart(dataDir, date, userID string, rows []schema.Row) (string, error) {
	path := filepath.Join(UserDayDir(dataDir, date, userID), NewPartName())
	if err := WriteRows(path, rows); err != nil {
		return "", err
	}
	return path, nil
}
