package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kasane/internal/library"
	"github.com/hyperjump/kasane/internal/models"
)

// Scan runs one incremental indexing pass: photos created after the persisted
// watermark are enumerated newest-first and embedded via compute-or-fetch.
// progress may be nil; when set it is called after every item and once more
// at completion.
//
// On completion the watermark advances to the creation time of the oldest
// item processed in this run. Advancing to the oldest (not the newest) item
// bounds the damage of an interrupted run to rescanning already-seen items;
// it can never silently skip unseen ones.
//
// Cancellation is cooperative and observed only between items; an in-flight
// extraction always completes first. A cancelled run does not advance the
// watermark. Individual item failures never abort the run.
func (idx *Indexer) Scan(ctx context.Context, progress models.ProgressFunc) (*models.ScanReport, error) {
	report := &models.ScanReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}

	wm, haveWM, err := idx.store.Watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watermark: %w", err)
	}

	all, err := idx.source.Enumerate(ctx, library.NewestFirst)
	if err != nil {
		return nil, fmt.Errorf("enumerate library: %w", err)
	}
	var refs []models.PhotoRef
	for _, ref := range all {
		if !haveWM || ref.CreatedAt.After(wm) {
			refs = append(refs, ref)
		}
	}
	report.Total = len(refs)
	if idx.logger != nil {
		idx.logger.Info("scan started",
			zap.String("run_id", report.RunID),
			zap.Int("total", report.Total),
			zap.Bool("incremental", haveWM),
		)
	}

	yieldEvery := idx.cfg.Scan.YieldEvery
	if yieldEvery <= 0 {
		yieldEvery = 10
	}

	processed := 0
	var oldest time.Time
	for _, ref := range refs {
		// Cancellation is checked only at item boundaries.
		if err := ctx.Err(); err != nil {
			if progress != nil {
				progress(processed, report.Total)
			}
			return report, err
		}

		if idx.tracker.IsPermanentlyFailed(ref.ID) {
			report.Skipped++
		} else {
			_, cached, err := idx.EnsureEmbedding(ctx, ref)
			switch {
			case err == nil && cached:
				report.CacheHits++
			case err == nil:
				report.Embedded++
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				if progress != nil {
					progress(processed, report.Total)
				}
				return report, err
			default:
				report.Failed++
				if idx.logger != nil {
					idx.logger.Warn("scan item failed",
						zap.String("photo_id", ref.ID),
						zap.Bool("counts_toward_cap", retryable(err)),
						zap.Error(err))
				}
			}
		}

		processed++
		oldest = ref.CreatedAt
		if progress != nil {
			progress(processed, report.Total)
		}
		if processed%yieldEvery == 0 {
			// Let interactive similarity queries run between batches.
			runtime.Gosched()
		}
	}

	if processed > 0 {
		if err := idx.store.SetWatermark(ctx, oldest); err != nil {
			return report, fmt.Errorf("advance watermark: %w", err)
		}
		report.Watermark = oldest
	} else if haveWM {
		report.Watermark = wm
	}

	report.FinishedAt = time.Now()
	if progress != nil {
		progress(processed, report.Total)
	}
	if idx.logger != nil {
		idx.logger.Info("scan finished",
			zap.String("run_id", report.RunID),
			zap.Int("embedded", report.Embedded),
			zap.Int("cache_hits", report.CacheHits),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
			zap.Duration("took", report.Duration()),
		)
	}
	return report, nil
}
