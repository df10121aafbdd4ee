package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/models"
)

// claim downloads the pending manifest and moves it to processing/.
// The store has no compare-and-swap: the move is copy-then-delete, and
// a missing source during the move means another worker won the race.
// Returns (nil, nil) for a lost race so the caller just polls again.
func (a *Agent) claim(ctx context.Context, key string) (*models.Manifest, error) {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	manifest, parseErr := models.ManifestFromJSON(data)
	if parseErr == nil {
		parseErr = manifest.Validate()
	}
	if parseErr != nil {
		// A bad manifest would wedge the queue head forever; move it
		// aside as a failed job.
		id := models.JobIDFromManifestKey(key)
		a.logger.Error().Err(parseErr).Str("key", key).Msg("Discarding invalid pending manifest")
		if id != "" {
			a.publishFailureRecord(ctx, id, models.CauseInternal, fmt.Sprintf("invalid manifest: %v", parseErr))
		}
		return nil, a.store.Delete(ctx, key)
	}

	if err := a.store.Move(ctx, key, models.ProcessingKey(manifest.JobID)); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			a.logger.Debug().
				Str("job_id", manifest.JobID).
				Msg("Lost claim race, job taken by another worker")
			return nil, nil
		}
		return nil, err
	}

	a.logger.Info().
		Str("job_id", manifest.JobID).
		Str("job_type", string(manifest.JobType)).
		Str("worker", a.name).
		Msg("Claimed job")
	return manifest, nil
}

// recoverStaleClaims runs once at startup. A processing manifest older
// than the tool timeout belongs to a worker that died mid-job; moving
// it back to pending lets the queue retry it from scratch.
func (a *Agent) recoverStaleClaims(ctx context.Context) error {
	keys, err := a.store.List(ctx, models.ProcessingPrefix)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-a.config.Worker.ToolTimeoutDuration())
	for _, key := range keys {
		id := models.JobIDFromManifestKey(key)
		if id == "" {
			continue
		}
		info, err := a.store.Stat(ctx, key)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return err
		}
		if info.LastModified.After(cutoff) {
			continue
		}

		if err := a.store.Move(ctx, key, models.PendingKey(id)); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			a.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to recover stale claim")
			continue
		}
		a.logger.Info().
			Str("job_id", id).
			Str("claimed_at", info.LastModified.Format(time.RFC3339)).
			Msg("Recovered stale claim back to pending")
	}
	return nil
}
