package compactor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"heartbeat/pkg/schema"
	"heartbeat/pkg/storage"
)

func ts(h, m, s int) int64 {
	return time.Date(2025, 1, 15, h, m, s, 0, time.UTC).UnixMilli()
}

func TestMergePriorityWins(t *testing.T) {
	rows := []schema.Row{
		{TimestampMS: ts(10, 0, 0), HeartRate: 80, DeviceID: "device_b", UserID: "u1"},
		{TimestampMS: ts(10, 0, 0), HeartRate: 72, DeviceID: "device_a", UserID: "u1"},
		{TimestampMS: ts(10, 0, 5), HeartRate: 85, DeviceID: "device_b", UserID: "u1"},
	}
	got := Merge(rows)
	want := []schema.Row{
		{TimestampMS: ts(10, 0, 0), HeartRate: 72, DeviceID: "device_a", UserID: "u1"},
		{TimestampMS: ts(10, 0, 5), HeartRate: 85, DeviceID: "device_b", UserID: "u1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeUnknownDeviceLoses(t *testing.T) {
	rows := []schema.Row{
		{TimestampMS: ts(10, 0, 0), HeartRate: 99, DeviceID: "device_z", UserID: "u1"},
		{TimestampMS: ts(10, 0, 0), HeartRate: 80, DeviceID: "device_b", UserID: "u1"},
	}
	got := Merge(rows)
	if len(got) != 1 || got[0].DeviceID != "device_b" {
		t.Fatalf("Merge = %+v, want the known device to win", got)
	}
}

func TestMergeEqualPriorityKeepsFirst(t *testing.T) {
	rows := []schema.Row{
		{TimestampMS: ts(10, 0, 0), HeartRate: 70, DeviceID: "device_a", UserID: "u1"},
		{TimestampMS: ts(10, 0, 0), HeartRate: 75, DeviceID: "device_a", UserID: "u1"},
	}
	got := Merge(rows)
	if len(got) != 1 || got[0].HeartRate != 70 {
		t.Fatalf("Merge = %+v, want first occurrence kept", got)
	}
}

func TestMergeSortsAscending(t *testing.T) {
	rows := []schema.Row{
		{TimestampMS: ts(10, 0, 10), HeartRate: 75, DeviceID: "device_a", UserID: "u1"},
		{TimestampMS: ts(10, 0, 0), HeartRate: 70, DeviceID: "device_a", UserID: "u1"},
		{TimestampMS: ts(10, 0, 5), HeartRate: 72, DeviceID: "device_a", UserID: "u1"},
	}
	got := Merge(rows)
	for i := 1; i < len(got); i++ {
		if got[i-1].TimestampMS >= got[i].TimestampMS {
			t.Fatalf("Merge not sorted: %+v", got)
		}
	}
}

func writePart(t *testing.T, dataDir string, rows []schema.Row) string {
	t.Helper()
	p, err := storage.WritePart(dataDir, "2025-01-15", "u1", rows)
	if err != nil {
		t.Fatalf("WritePart: %v", err)
	}
	return p
}

func TestRunOnceCompactsPartition(t *testing.T) {
	dataDir := t.TempDir()
	archiveDir := t.TempDir()

	writePart(t, dataDir, []schema.Row{
		{TimestampMS: ts(10, 0, 0), HeartRate: 80, DeviceID: "device_b", UserID: "u1"},
	})
	writePart(t, dataDir, []schema.Row{
		{TimestampMS: ts(10, 0, 0), HeartRate: 72, DeviceID: "device_a", UserID: "u1"},
		{TimestampMS: ts(10, 0, 5), HeartRate: 85, DeviceID: "device_b", UserID: "u1"},
	})

	c := New(Options{DataDir: dataDir, ArchiveDir: archiveDir, MinParts: 2})
	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := schema.Read(storage.CompactedPath(dataDir, "2025-01-15", "u1"))
	if err != nil {
		t.Fatalf("Read compacted: %v", err)
	}
	want := []schema.Row{
		{TimestampMS: ts(10, 0, 0), HeartRate: 72, DeviceID: "device_a", UserID: "u1"},
		{TimestampMS: ts(10, 0, 5), HeartRate: 85, DeviceID: "device_b", UserID: "u1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("compacted rows mismatch (-want +got):\n%s", diff)
	}

	parts, err := storage.ListParts(storage.UserDayDir(dataDir, "2025-01-15", "u1"))
	if err != nil {
		t.Fatalf("ListParts: %v", err)
	}
	if len(parts) != 0 {
		t.Fatalf("parts not archived: %v", parts)
	}
	archived, err := os.ReadDir(filepath.Join(archiveDir, "2025-01-15", "user-u1"))
	if err != nil {
		t.Fatalf("archive dir: %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("archived files = %d, want 2", len(archived))
	}
}

func TestRunOnceSkipsBelowThreshold(t *testing.T) {
	dataDir := t.TempDir()
	archiveDir := t.TempDir()
	part := writePart(t, dataDir, []schema.Row{
		{TimestampMS: ts(10, 0, 0), HeartRate: 72, DeviceID: "device_a", UserID: "u1"},
	})

	c := New(Options{DataDir: dataDir, ArchiveDir: archiveDir, MinParts: 2})
	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, err := os.Stat(part); err != nil {
		t.Fatalf("part below threshold was touched: %v", err)
	}
	if _, err := os.Stat(storage.CompactedPath(dataDir, "2025-01-15", "u1")); !os.IsNotExist(err) {
		t.Fatalf("compacted file written below threshold")
	}
}

func TestRunOnceMergesWithExistingCompacted(t *testing.T) {
	dataDir := t.TempDir()
	archiveDir := t.TempDir()

	// Existing compacted file from a previous cycle.
	if err := storage.WriteRows(storage.CompactedPath(dataDir, "2025-01-15", "u1"), []schema.Row{
		{TimestampMS: ts(9, 0, 0), HeartRate: 60, DeviceID: "device_a", UserID: "u1"},
		{TimestampMS: ts(10, 0, 0), HeartRate: 80, DeviceID: "device_b", UserID: "u1"},
	}); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	writePart(t, dataDir, []schema.Row{
		{TimestampMS: ts(10, 0, 0), HeartRate: 72, DeviceID: "device_a", UserID: "u1"},
	})
	writePart(t, dataDir, []schema.Row{
		{TimestampMS: ts(11, 0, 0), HeartRate: 90, DeviceID: "device_b", UserID: "u1"},
	})

	c := New(Options{DataDir: dataDir, ArchiveDir: archiveDir, MinParts: 2})
	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := schema.Read(storage.CompactedPath(dataDir, "2025-01-15", "u1"))
	if err != nil {
		t.Fatalf("Read compacted: %v", err)
	}
	want := []schema.Row{
		{TimestampMS: ts(9, 0, 0), HeartRate: 60, DeviceID: "device_a", UserID: "u1"},
		{TimestampMS: ts(10, 0, 0), HeartRate: 72, DeviceID: "device_a", UserID: "u1"},
		{TimestampMS: ts(11, 0, 0), HeartRate: 90, DeviceID: "device_b", UserID: "u1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("compacted rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRunOnceSkipsUnreadablePart(t *testing.T) {
	dataDir := t.TempDir()
	archiveDir := t.TempDir()

	good := writePart(t, dataDir, []schema.Row{
		{TimestampMS: ts(10, 0, 0), HeartRate: 72, DeviceID: "device_a", UserID: "u1"},
	})
	bad := filepath.Join(storage.UserDayDir(dataDir, "2025-01-15", "u1"), "part-"+"deadbeefdeadbeefdeadbeefdeadbeef"+".parquet")
	if err := os.WriteFile(bad, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	c := New(Options{DataDir: dataDir, ArchiveDir: archiveDir, MinParts: 2})
	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := schema.Read(storage.CompactedPath(dataDir, "2025-01-15", "u1"))
	if err != nil {
		t.Fatalf("Read compacted: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("compacted rows = %d, want 1 (good part only)", len(got))
	}
	// The unreadable part must stay put for operator inspection; the good
	// part is archived.
	if _, err := os.Stat(bad); err != nil {
		t.Fatalf("unreadable part was moved: %v", err)
	}
	if _, err := os.Stat(good); !os.IsNotExist(err) {
		t.Fatalf("good part not archived")
	}
}

func TestNewRejectsBadCronOnRun(t *testing.T) {
	c := New(Options{DataDir: t.TempDir(), ArchiveDir: t.TempDir(), Cron: "not a cron"})
	if err := c.Run(context.Background()); err == nil {
		t.Fatalf("Run accepted an invalid cron expression")
	}
}
