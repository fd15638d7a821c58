// Package failure tracks per-photo extraction failures across interactive
// and batch callers.
package failure

import "sync"

// DefaultMaxRetries is the attempt count after which a photo is marked
// permanently failed.
const DefaultMaxRetries = 3

type record struct {
	attempts  int
	permanent bool
}

// Tracker counts extraction failures per photo id and promotes ids to a
// permanent-failure state once the retry cap is reached. All mutations are
// guarded by one lock; critical sections are map operations only, so the
// lock is never held across extraction or I/O.
type Tracker struct {
	mu         sync.Mutex
	records    map[string]*record
	maxRetries int
}

// NewTracker creates a tracker with the given retry cap. A cap of 0 or less
// uses DefaultMaxRetries.
func NewTracker(maxRetries int) *Tracker {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Tracker{
		records:    make(map[string]*record),
		maxRetries: maxRetries,
	}
}

// RecordFailure increments the attempt count for photoID. Once attempts
// reach the cap, the id is marked permanently failed and future batch scans
// skip it.
func (t *Tracker) RecordFailure(photoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[photoID]
	if r == nil {
		r = &record{}
		t.records[photoID] = r
	}
	r.attempts++
	if r.attempts >= t.maxRetries {
		r.permanent = true
	}
}

// RecordSuccess clears the attempt count for photoID. Permanent failures are
// also cleared: a successful extraction supersedes the marker.
func (t *Tracker) RecordSuccess(photoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, photoID)
}

// IsPermanentlyFailed reports whether photoID has exhausted its retries.
func (t *Tracker) IsPermanentlyFailed(photoID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[photoID]
	return r != nil && r.permanent
}

// Attempts returns the current failure count for photoID.
func (t *Tracker) Attempts(photoID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[photoID]
	if r == nil {
		return 0
	}
	return r.attempts
}

// ClearAll resets all counters and permanent-failure markers. This is the
// only way a permanent failure becomes retryable again.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*record)
}

// PermanentCount returns the number of permanently failed ids.
func (t *Tracker) PermanentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.records {
		if r.permanent {
			n++
		}
	}
	return n
}
