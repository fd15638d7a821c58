package models

import "time"

// ProgressFunc receives scan progress. It is called at least once per
// processed item and once more at run completion.
type ProgressFunc func(processed, total int)

// ScanReport summarizes one completed incremental scan run.
type ScanReport struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Embedded   int       `json:"embedded"`
	CacheHits  int       `json:"cache_hits"`
	Skipped    int       `json:"skipped"` // permanently failed, not attempted
	Failed     int       `json:"failed"`
	Watermark  time.Time `json:"watermark"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall time of the run.
func (r *ScanReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
