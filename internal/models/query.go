package models

import "fmt"

// SimilarQuery is a request for photos visually similar to a target photo.
type SimilarQuery struct {
	PhotoID   string  `json:"photo_id"`
	Threshold float64 `json:"threshold,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

// Validate ensures the query has valid fields. A zero Limit means the
// configured default; defaulting happens in the similarity engine.
func (q *SimilarQuery) Validate() error {
	if q.PhotoID == "" {
		return fmt.Errorf("photo_id cannot be empty")
	}
	if q.Threshold < -1 || q.Threshold > 1 {
		return fmt.Errorf("threshold must be in [-1, 1], got %g", q.Threshold)
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", q.Limit)
	}
	return nil
}

// CompareQuery is a request for a pairwise comparison of two photos.
type CompareQuery struct {
	PhotoA string `json:"photo_a"`
	PhotoB string `json:"photo_b"`
}

// Validate ensures both photo ids are present.
func (q *CompareQuery) Validate() error {
	if q.PhotoA == "" || q.PhotoB == "" {
		return fmt.Errorf("photo_a and photo_b are both required")
	}
	return nil
}

// CompareResponse holds the pairwise measures for two photos.
type CompareResponse struct {
	PhotoA string `json:"photo_a"`
	PhotoB string `json:"photo_b"`
	// Cosine compares the stored embeddings.
	Cosine float64 `json:"cosine"`
	// CrossCorrelation and HammingDistance compare grayscale coefficient
	// grids derived from the pixels.
	CrossCorrelation float64 `json:"cross_correlation"`
	HammingDistance  int     `json:"hamming_distance"`
}

// SimilarResult is a single similarity hit.
type SimilarResult struct {
	PhotoID string  `json:"photo_id"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// SimilarResponse is the response for a similarity query.
type SimilarResponse struct {
	TargetID string           `json:"target_id"`
	Results  []*SimilarResult `json:"results"`
	// ResolveTime covers resolving the target embedding (compute-or-fetch),
	// timed separately from the scan for diagnostics.
	ResolveTimeMs int64 `json:"resolve_time_ms"`
	ScanTimeMs    int64 `json:"scan_time_ms"`
}
