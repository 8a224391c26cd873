package reconciler

import (
	"context"
	"fmt"
	"time"

	"strreconcile.dev/core/model"
)

// applyModification performs spec §4.6 step 4's modification clone: carry
// the predecessor's fields forward except the documented write-blacklist,
// overwrite with the event's values, demote the predecessor to Old with
// its job id renamed, and create the clone with the given status.
//
// Open-question resolution (documented in DESIGN.md): "formula fields"
// excluded from the clone are FinalServiceTime/ScheduledServiceTime, which
// C7 recomputes/re-observes on its next pass rather than inheriting a
// stale value; "sync-details fields" excluded are SyncDetails/
// ScheduleSyncDetails, cleared so a stale diagnostic message about the
// predecessor's schedule never survives onto the new record. JobID,
// AppointmentID, JobStatus, and SyncStatus are carried explicitly, per
// "carry the job-link and sync fields from the newest active
// predecessor" — except JobID/AppointmentID/JobStatus, which are cleared
// instead when the new status is Removed.
func (rc *Reconciler) applyModification(ctx context.Context, predecessor *model.Reservation, ev Event, status model.Status) error {
	clone := predecessor.Clone()
	clone.CheckIn = ev.CheckIn
	clone.CheckOut = ev.CheckOut
	clone.PropertyID = ev.PropertyID
	clone.EntryType = ev.EntryType
	clone.ServiceType = ev.ServiceType
	clone.SupplierInfo = ev.SupplierInfo
	clone.Status = status
	clone.LastUpdated = rc.now()
	clone.LastSeen = rc.now()
	clone.RunID = rc.cfg.RunID
	clone.MissingCount = 0
	clone.MissingSince = time.Time{}

	clone.FinalServiceTime = time.Time{}
	clone.ScheduledServiceTime = time.Time{}
	clone.SyncDetails = ""
	clone.ScheduleSyncDetails = ""

	// Overwrite the clone's derived flags with the event's values rather
	// than inheriting the predecessor's (spec §4.6 step 4): none of them
	// are known from ev alone, so they reset to false pending the next
	// RecomputeFlags pass, except the iTrip same-day override applied
	// below.
	clone.SameDayTurnover = false
	clone.OverlappingDates = false
	clone.OwnerArriving = false
	clone.LongTermGuest = false

	applySameDayOverride(clone, ev)

	if status == model.StatusRemoved {
		clone.JobID = ""
		clone.AppointmentID = ""
		clone.JobStatus = ""
	}

	demoted := predecessor.Clone()
	demoted.RecordID = predecessor.RecordID
	demoted.Status = model.StatusOld
	demoted.JobID = demotedJobID(predecessor.JobID)
	if err := rc.store.UpdateReservation(ctx, demoted); err != nil {
		return fmt.Errorf("reconciler: demote predecessor %s: %w", predecessor.RecordID, err)
	}

	idempotencyKey := rc.cfg.RunID + "_" + ev.UID + "_" + ev.FeedURL
	if _, err := rc.store.CreateReservation(ctx, clone, idempotencyKey); err != nil {
		return fmt.Errorf("reconciler: create modification clone for %s: %w", ev.UID, err)
	}
	return nil
}
