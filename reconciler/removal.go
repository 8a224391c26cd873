package reconciler

import (
	"context"
	"fmt"
	"time"

	"strreconcile.dev/core/identity"
	"strreconcile.dev/core/model"
)

// ObservedChecker reports whether a (feedURL, uid) pair was seen during
// the current run. feedingest.SessionTracker satisfies this by duck
// typing.
type ObservedChecker interface {
	Observed(feedURL, uid string) bool
}

// FingerprintRescuer reports whether a fingerprint was claimed by any
// event this run, regardless of UID. feedingest.SessionTracker satisfies
// this too (spec §4.6 "cross-UID rescue").
type FingerprintRescuer interface {
	RescueByFingerprint(fp identity.Fingerprint) (uid string, ok bool)
}

// EvaluateRemovals implements spec §4.6.1 and the cross-UID rescue. It
// walks every active record whose feed was actually fetched this run; a
// record not observed and not fingerprint-rescued accrues a miss, and is
// demoted to Removed once every eligibility condition holds.
func (rc *Reconciler) EvaluateRemovals(
	ctx context.Context,
	active []*model.Reservation,
	coveredFeedURLs map[string]bool,
	observed ObservedChecker,
	rescuer FingerprintRescuer,
) error {
	today := model.NewDate(rc.now(), rc.cfg.Location)

	for _, r := range active {
		if r.Status == model.StatusOld {
			continue
		}
		if !coveredFeedURLs[r.FeedURL] {
			continue
		}
		if observed.Observed(r.FeedURL, r.UID) {
			continue
		}

		fp := identity.FingerprintOf(r)
		if _, rescued := rescuer.RescueByFingerprint(fp); rescued {
			continue
		}

		if err := rc.evaluateCandidate(ctx, r, today); err != nil {
			return err
		}
	}
	return nil
}

func (rc *Reconciler) evaluateCandidate(ctx context.Context, r *model.Reservation, today model.Date) error {
	missingSince := r.MissingSince
	if missingSince.IsZero() {
		missingSince = rc.now()
	}
	missingCount := r.MissingCount + 1

	if rc.isRemovalEligible(r, missingCount, missingSince, today) {
		ev := Event{
			UID:          r.UID,
			FeedURL:      r.FeedURL,
			PropertyID:   r.PropertyID,
			CheckIn:      r.CheckIn,
			CheckOut:     r.CheckOut,
			EntryType:    r.EntryType,
			ServiceType:  r.ServiceType,
			SupplierInfo: r.SupplierInfo,
		}
		return rc.applyModification(ctx, r, ev, model.StatusRemoved)
	}

	updated := r.Clone()
	updated.RecordID = r.RecordID
	updated.MissingCount = missingCount
	updated.MissingSince = missingSince
	if err := rc.store.UpdateReservation(ctx, updated); err != nil {
		return fmt.Errorf("reconciler: record removal candidacy for %s: %w", r.UID, err)
	}
	return nil
}

// isRemovalEligible implements spec §4.6.1's four-condition eligibility
// test: missing-count threshold, missing-since age, job status neither
// Scheduled nor In Progress, and check-in/check-out not imminent.
func (rc *Reconciler) isRemovalEligible(r *model.Reservation, missingCount int, missingSince time.Time, today model.Date) bool {
	if missingCount < rc.cfg.MissingCountThreshold {
		return false
	}
	if rc.now().Sub(missingSince) < rc.cfg.MissingSinceThreshold {
		return false
	}
	if r.JobStatus == model.JobStatusScheduled || r.JobStatus == model.JobStatusInProgress {
		return false
	}

	checkInImminent := !r.CheckIn.Before(today) && !r.CheckIn.After(today.AddDays(1))
	checkOutTodayOrTomorrow := r.CheckOut.Equal(today) || r.CheckOut.Equal(today.AddDays(1))
	if checkInImminent || checkOutTodayOrTomorrow {
		return false
	}

	return true
}
