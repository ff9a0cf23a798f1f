// inspect dumps the rows of a parquet file through the same normalizing
// decoder the pipeline uses, so what it prints is what the reader sees.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"heartbeat/pkg/schema"
)

func main() {
	var (
		countOnly = flag.Bool("count", false, "print only the row count")
		asJSON    = flag.Bool("json", false, "print rows as JSON lines")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: inspect [--count] [--json] <file.parquet>...")
		os.Exit(2)
	}

	exit := 0
	for _, path := range flag.Args() {
		rows, err := schema.Read(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
			exit = 1
			continue
		}
		if *countOnly {
			fmt.Printf("%s: %d rows\n", path, len(rows))
			continue
		}
		if flag.NArg() > 1 {
			fmt.Printf("== %s (%d rows)\n", path, len(rows))
		}
		enc := json.NewEncoder(os.Stdout)
		for _, r := range rows {
			if *asJSON {
				_ = enc.Encode(map[string]any{
					"timestamp_ms": r.TimestampMS,
					"heart_rate":   r.HeartRate,
					"device_id":    r.DeviceID,
					"user_id":      r.UserID,
				})
				continue
			}
			fmt.Printf("%d\t%d\t%s\t%s\n", r.TimestampMS, r.HeartRate, r.DeviceID, r.UserID)
		}
	}
	os.Exit(exit)
}
