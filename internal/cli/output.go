// Package cli renders search results, stats, and run reports for the
// command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/openclaw/kioku/internal/ingest"
	"github.com/openclaw/kioku/internal/store"
	"github.com/openclaw/kioku/pkg/utils"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, results []store.QueryResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{
			"results": results,
			"count":   len(results),
		})
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return nil
	}
	fmt.Fprintf(w, "\nFound %d results\n\n", len(results))
	for i, result := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, result.Score)
		fmt.Fprintf(w, "ID: %s\n", result.ID)
		if src := result.Metadata["source"]; src != "" {
			fmt.Fprintf(w, "Source: %s (%s)\n", src, result.Metadata["type"])
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(result.Text, 300))
	}
	return nil
}

// WriteStats writes store statistics to w in the given format.
func WriteStats(w io.Writer, stats *store.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Total documents: %d\n", stats.TotalDocuments)
	if len(stats.ByType) > 0 {
		fmt.Fprintln(w, "\nBy type:")
		for _, k := range sortedKeys(stats.ByType) {
			fmt.Fprintf(w, "  %-12s %d\n", k, stats.ByType[k])
		}
	}
	if len(stats.BySource) > 0 {
		fmt.Fprintf(w, "\nDistinct sources: %d\n", len(stats.BySource))
	}
	return nil
}

// WriteReport writes an ingestion run report to w in the given format.
func WriteReport(w io.Writer, report *ingest.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	for _, c := range report.Collections {
		switch c.Status {
		case ingest.StatusSkipped:
			fmt.Fprintf(w, "%-12s skipped (unchanged)\n", c.Name)
		case ingest.StatusFailed:
			fmt.Fprintf(w, "%-12s FAILED: %v\n", c.Name, c.Err)
		default:
			fmt.Fprintf(w, "%-12s %d documents, %d chunks\n", c.Name, c.Documents, c.Chunks)
		}
	}
	fmt.Fprintf(w, "\n%s in %s\n", report.State(), report.Finished.Sub(report.Started).Round(1e6))
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
