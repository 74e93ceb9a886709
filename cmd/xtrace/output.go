package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// writeOutput renders v as JSON when format is "json", otherwise calls
// textRender to produce the human-readable report body, writing either
// to outPath or stdout. Shared by every subcommand so --format/--out
// behave identically across flow-overview, flow-sessions, flow-events,
// parsing-log, iccid, stats, and scenario.
func writeOutput(format string, v interface{}, textRender func(io.Writer) error) error {
	w := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("xtrace: create output file %s: %w", outPath, err)
		}
		defer f.Close()
		w = f
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return textRender(w)
}

func formatTimestamp(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}
