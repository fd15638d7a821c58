package indexer

import "errors"

// Failure kinds for embedding work. Decode and extraction failures are
// transient and count toward the retry cap; persist failures are reported to
// the caller and never auto-retried. A missing embedding is not an error at
// all (Get returns nil).
var (
	ErrDecode  = errors.New("photo decode failed")
	ErrExtract = errors.New("feature extraction failed")
	ErrPersist = errors.New("embedding persist failed")
)

// retryable reports whether err counts toward the failure tracker's cap.
func retryable(err error) bool {
	return errors.Is(err, ErrDecode) || errors.Is(err, ErrExtract)
}

// noteFailure records err against the retry cap when it is retryable and
// returns err unchanged.
func (idx *Indexer) noteFailure(photoID string, err error) error {
	if retryable(err) {
		idx.tracker.RecordFailure(photoID)
	}
	return err
}
