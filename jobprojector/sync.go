package jobprojector

import (
	"context"
	"fmt"

	humanize "github.com/dustin/go-humanize"

	"strreconcile.dev/core/model"
)

// VerifySync implements spec §4.7.1: it re-fetches r's downstream job and
// compares scheduled_start to Final Service Time at minute granularity in
// the business timezone. It returns nil when r has no job id and was
// already marked Not Created (nothing to write), otherwise a ready-to-
// persist copy of r with Sync Status/Scheduled Service Time updated and
// Schedule Sync Details written only on divergence.
func (p *Projector) VerifySync(ctx context.Context, r *model.Reservation) (*model.Reservation, error) {
	if r.JobID == "" {
		if r.SyncStatus == model.SyncStatusNotCreated {
			return nil, nil
		}
		updated := r.Clone()
		updated.RecordID = r.RecordID
		updated.SyncStatus = model.SyncStatusNotCreated
		return updated, nil
	}

	job, err := p.fs.GetJob(ctx, r.JobID)
	if err != nil {
		return nil, fmt.Errorf("jobprojector: fetch job %s for sync check: %w", r.JobID, err)
	}

	want := r.FinalServiceTime.In(p.cfg.Location)
	got := job.ScheduledTime.In(p.cfg.Location)

	dateMatches := want.Year() == got.Year() && want.YearDay() == got.YearDay()
	timeMatches := want.Hour() == got.Hour() && want.Minute() == got.Minute()

	var status model.SyncStatus
	switch {
	case dateMatches && timeMatches:
		status = model.SyncStatusSynced
	case !dateMatches:
		status = model.SyncStatusWrongDate
	default:
		status = model.SyncStatusWrongTime
	}

	updated := r.Clone()
	updated.RecordID = r.RecordID
	updated.ScheduledServiceTime = job.ScheduledTime
	updated.SyncStatus = status
	updated.JobStatus = MapJobStatus(job.Status)
	if status != model.SyncStatusSynced {
		updated.ScheduleSyncDetails = fmt.Sprintf(
			"%s: expected %s, downstream shows %s (checked %s)",
			status, want.Format("2006-01-02 15:04"), got.Format("2006-01-02 15:04"), humanize.Time(p.now()),
		)
	}
	return updated, nil
}
