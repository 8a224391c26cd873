package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"strreconcile.dev/core/identity"
	"strreconcile.dev/core/model"
)

// ProcessEvent applies spec §4.6's per-event decision tree for one
// (UID, FeedURL). It is safe to call concurrently for different keys, but
// the orchestrator must serialize calls that share a key (SPEC_FULL C6).
func (rc *Reconciler) ProcessEvent(ctx context.Context, ev Event) error {
	key := model.Key{UID: ev.UID, FeedURL: ev.FeedURL}

	active, err := rc.store.ActiveReservationsForKey(ctx, key)
	if err != nil {
		return fmt.Errorf("reconciler: query active for %s/%s: %w", ev.UID, ev.FeedURL, err)
	}

	switch {
	case len(active) == 0:
		return rc.createNew(ctx, ev)
	case len(active) == 1:
		return rc.reconcileSingle(ctx, active[0], ev)
	default:
		return rc.resolveDuplicates(ctx, active, ev)
	}
}

func (rc *Reconciler) createNew(ctx context.Context, ev Event) error {
	r := &model.Reservation{
		UID:         ev.UID,
		FeedURL:     ev.FeedURL,
		PropertyID:  ev.PropertyID,
		CheckIn:     ev.CheckIn,
		CheckOut:    ev.CheckOut,
		EntryType:   ev.EntryType,
		ServiceType: ev.ServiceType,
		SupplierInfo: ev.SupplierInfo,
		Status:      model.StatusNew,
		LastSeen:    rc.now(),
		LastUpdated: rc.now(),
		RunID:       rc.cfg.RunID,
	}
	applySameDayOverride(r, ev)

	idempotencyKey := rc.cfg.RunID + "_" + ev.UID + "_" + ev.FeedURL
	_, err := rc.store.CreateReservation(ctx, r, idempotencyKey)
	if err != nil {
		return fmt.Errorf("reconciler: create new record for %s: %w", ev.UID, err)
	}
	return nil
}

func (rc *Reconciler) reconcileSingle(ctx context.Context, existing *model.Reservation, ev Event) error {
	if identity.ChangeSignature(existing) == eventChangeSignature(existing, ev) {
		return rc.noopObserve(ctx, existing)
	}

	// Grace-interval race guard: another concurrent run may have just
	// written a newer record for this key (spec §4.6 step 4).
	if err := rc.cfg.Sleep(ctx, rc.cfg.GraceInterval); err != nil {
		return err
	}
	recheck, err := rc.store.ActiveReservationsForKey(ctx, model.Key{UID: ev.UID, FeedURL: ev.FeedURL})
	if err != nil {
		return fmt.Errorf("reconciler: re-query active for %s: %w", ev.UID, err)
	}
	if len(recheck) != 1 || recheck[0].RecordID != existing.RecordID {
		rc.logger.WithField("uid", ev.UID).Info("skipping modification: newer record appeared during grace interval")
		return nil
	}

	return rc.applyModification(ctx, existing, ev, model.StatusModified)
}

// noopObserve handles the "signatures match, no writes" branch (spec §4.6
// step 3), except it still resets removal-safety counters and refreshes
// LastSeen when the record had accrued any missing-count — seeing the
// UID again is itself the reset trigger (spec §4.6.1).
func (rc *Reconciler) noopObserve(ctx context.Context, existing *model.Reservation) error {
	if existing.MissingCount == 0 && existing.MissingSince.IsZero() {
		return nil
	}
	reset := existing.Clone()
	reset.RecordID = existing.RecordID
	reset.MissingCount = 0
	reset.MissingSince = time.Time{}
	reset.LastSeen = rc.now()
	if err := rc.store.UpdateReservation(ctx, reset); err != nil {
		return fmt.Errorf("reconciler: reset removal counters for %s: %w", existing.UID, err)
	}
	return nil
}

// resolveDuplicates implements spec §4.6 step 5: more than one active
// record exists for the same key. The newest (by LastUpdated, then
// ascending RecordID per the determinism tie-break) wins; the rest are
// demoted to Old, then the winner is reconciled against ev as usual.
func (rc *Reconciler) resolveDuplicates(ctx context.Context, active []*model.Reservation, ev Event) error {
	sort.Slice(active, func(i, j int) bool {
		if !active[i].LastUpdated.Equal(active[j].LastUpdated) {
			return active[i].LastUpdated.After(active[j].LastUpdated)
		}
		return active[i].RecordID < active[j].RecordID
	})

	winner := active[0]
	for _, loser := range active[1:] {
		demoted := loser.Clone()
		demoted.RecordID = loser.RecordID
		demoted.Status = model.StatusOld
		demoted.JobID = demotedJobID(loser.JobID)
		if err := rc.store.UpdateReservation(ctx, demoted); err != nil {
			return fmt.Errorf("reconciler: demote duplicate %s: %w", loser.RecordID, err)
		}
	}

	return rc.reconcileSingle(ctx, winner, ev)
}

func applySameDayOverride(r *model.Reservation, ev Event) {
	if ev.SameDayOverride != nil {
		r.SameDayTurnover = *ev.SameDayOverride
	}
}
