// Package cli provides output formatting for the Kasane CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/kasane/internal/models"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "text", "":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSimilarResults writes a similarity search response to w.
func WriteSimilarResults(w io.Writer, response *models.SimilarResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\n%d match(es) for %s (resolve %dms, scan %dms)\n\n",
		len(response.Results), response.TargetID, response.ResolveTimeMs, response.ScanTimeMs)
	for _, r := range response.Results {
		fmt.Fprintf(w, "%3d. %-40s %.4f\n", r.Rank, r.PhotoID, r.Score)
	}
	fmt.Fprintln(w)
	return nil
}

// WriteCompareResult writes a pairwise comparison to w.
func WriteCompareResult(w io.Writer, response *models.CompareResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\n%s vs %s\n\n", response.PhotoA, response.PhotoB)
	fmt.Fprintf(w, "  cosine             %.4f\n", response.Cosine)
	fmt.Fprintf(w, "  cross-correlation  %.4f\n", response.CrossCorrelation)
	fmt.Fprintf(w, "  hamming distance   %d/64\n", response.HammingDistance)
	fmt.Fprintln(w)
	return nil
}

// WriteDuplicateGroups writes duplicate groups to w.
func WriteDuplicateGroups(w io.Writer, groups []*models.DuplicateGroup, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, groups)
	}
	if len(groups) == 0 {
		fmt.Fprintln(w, "No duplicate groups found.")
		return nil
	}
	fmt.Fprintf(w, "\n%d duplicate group(s)\n", len(groups))
	for i, g := range groups {
		fmt.Fprintf(w, "\nGroup %d (%d photos):\n", i+1, len(g.Members))
		for _, id := range g.Members {
			marker := " "
			if id == g.SeedID {
				marker = "*"
			}
			fmt.Fprintf(w, "  %s %s\n", marker, id)
		}
	}
	fmt.Fprintln(w)
	return nil
}

// WriteStacks writes rebuilt stacks to w. Singletons are summarized, not listed.
func WriteStacks(w io.Writer, stacks []*models.Stack, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stacks)
	}
	singletons := 0
	for _, s := range stacks {
		if s.ID == 0 {
			singletons++
			continue
		}
		fmt.Fprintf(w, "\nStack %d (%d photos):\n", s.ID, len(s.Members))
		for _, m := range s.Members {
			fmt.Fprintf(w, "  %s  %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"), m.ID)
		}
	}
	fmt.Fprintf(w, "\n%d stack(s), %d singleton(s)\n", len(stacks)-singletons, singletons)
	return nil
}

// WriteScanReport writes a completed scan report to w.
func WriteScanReport(w io.Writer, report *models.ScanReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "\nScan %s finished in %s\n", report.RunID, report.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  total:      %d\n", report.Total)
	fmt.Fprintf(w, "  embedded:   %d\n", report.Embedded)
	fmt.Fprintf(w, "  cache hits: %d\n", report.CacheHits)
	fmt.Fprintf(w, "  skipped:    %d\n", report.Skipped)
	fmt.Fprintf(w, "  failed:     %d\n", report.Failed)
	if !report.Watermark.IsZero() {
		fmt.Fprintf(w, "  watermark:  %s\n", report.Watermark.Format("2006-01-02 15:04:05"))
	}
	return nil
}
