package worker

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/posefactory/renderq/internal/models"
)

// publishSuccess mirrors the job's output directory into results/<id>/
// and uploads the captured log. The results upload must finish before
// cleanup deletes the processing manifest; that ordering is what keeps
// a status probe from ever regressing past completed.
func (a *Agent) publishSuccess(ctx context.Context, m *models.Manifest) error {
	prefix := strings.TrimSuffix(models.ResultsKeyPrefix(m.JobID), "/")
	if err := a.store.Mirror(ctx, a.workspace.OutputDir(m), prefix); err != nil {
		return err
	}
	a.uploadLog(ctx, m.JobID)

	a.logger.Info().
		Str("job_id", m.JobID).
		Str("worker", a.name).
		Msg("Published job results")
	return nil
}

// publishFailure uploads the log and the _FAILED sentinel. Failed jobs
// still complete from the dispatcher's point of view; the sentinel is
// how the caller learns why.
func (a *Agent) publishFailure(ctx context.Context, m *models.Manifest, cause, message string) {
	a.uploadLog(ctx, m.JobID)
	a.publishFailureRecord(ctx, m.JobID, cause, message)

	a.logger.Warn().
		Str("job_id", m.JobID).
		Str("cause", cause).
		Str("message", message).
		Msg("Published job failure")
}

func (a *Agent) publishFailureRecord(ctx context.Context, id, cause, message string) {
	record := models.FailureRecord{Cause: cause, Message: message}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	key := models.ResultsKeyPrefix(id) + models.FailedSentinel
	if err := a.store.Put(ctx, key, data); err != nil {
		a.logger.Error().Err(err).Str("job_id", id).Msg("Failed to upload failure sentinel")
	}
}

// uploadLog copies the local capture file to results/<id>/log.txt.
// Best effort: a job without a log is still a published job.
func (a *Agent) uploadLog(ctx context.Context, id string) {
	data, err := os.ReadFile(a.workspace.LogPath(id))
	if err != nil {
		return
	}
	key := models.ResultsKeyPrefix(id) + models.LogObject
	if err := a.store.Put(ctx, key, data); err != nil {
		a.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to upload job log")
	}
}

// cleanup removes the processing manifest and the per-job workspace
// output. Runs only after the results upload completed.
func (a *Agent) cleanup(ctx context.Context, m *models.Manifest) {
	if err := a.store.Delete(ctx, models.ProcessingKey(m.JobID)); err != nil {
		a.logger.Warn().Err(err).Str("job_id", m.JobID).Msg("Failed to delete processing manifest")
	}
	if err := a.workspace.CleanupJob(m); err != nil {
		a.logger.Warn().Err(err).Str("job_id", m.JobID).Msg("Failed to remove job output directory")
	}
	if err := a.workspace.RecordJob(m); err != nil {
		a.logger.Warn().Err(err).Str("job_id", m.JobID).Msg("Failed to write local job record")
	}
}
