// Package schema defines the canonical columnar row and the normalizing
// parquet decoder every reader in the system goes through.
//
// Canonical schema: [timestamp_ms:i64, heart_rate:i64, device_id:utf8,
// user_id:utf8], in that order. Files written by older producers may carry
// extra columns, miss columns, or use narrower numeric types; Read
// normalizes all of that at the boundary so downstream code never sees a
// heterogeneous frame.
package schema

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// Row is one record in the canonical schema. Field order is the canonical
// column order.
type Row struct {
	TimestampMS int64  `parquet:"timestamp_ms,snappy"`
	HeartRate   int64  `parquet:"heart_rate,snappy"`
	DeviceID    string `parquet:"device_id,snappy"`
	UserID      string `parquet:"user_id,snappy"`
}

// Columns is the canonical column order.
var Columns = []string{"timestamp_ms", "heart_rate", "device_id", "user_id"}

// Read opens a parquet file and returns its rows normalized to the
// canonical schema: known columns are matched by name with best-effort type
// coercion, missing columns are filled with the zero value, and extra
// columns are ignored.
func Read(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("parquet open %s: %w", path, err)
	}

	// Leaf column name by column index, for matching values back to the
	// canonical fields regardless of the file's own column order.
	paths := pf.Schema().Columns()
	names := make([]string, len(paths))
	for i, p := range paths {
		if len(p) > 0 {
			names[i] = p[len(p)-1]
		}
	}

	var out []Row
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		buf := make([]parquet.Row, 256)
		for {
			n, err := rows.ReadRows(buf)
			for _, pr := range buf[:n] {
				out = append(out, normalize(pr, names))
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				rows.Close()
				return nil, fmt.Errorf("parquet read %s: %w", path, err)
			}
			if n == 0 {
				break
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("parquet close %s: %w", path, err)
		}
	}
	return out, nil
}

func normalize(pr parquet.Row, names []string) Row {
	var r Row
	for _, v := range pr {
		col := v.Column()
		if col < 0 || col >= len(names) || v.IsNull() {
			continue
		}
		switch names[col] {
		case "timestamp_ms":
			r.TimestampMS = toInt64(v)
		case "heart_rate":
			r.HeartRate = toInt64(v)
		case "device_id":
			r.DeviceID = toString(v)
		case "user_id":
			r.UserID = toString(v)
		}
	}
	return r
}

func toInt64(v parquet.Value) int64 {
	switch v.Kind() {
	case parquet.Int32, parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return int64(v.Float())
	case parquet.Double:
		return int64(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func toString(v parquet.Value) string {
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return v.String()
	case parquet.Int32, parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	default:
		return ""
	}
}
