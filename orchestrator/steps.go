package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"strreconcile.dev/core/csvingest"
	"strreconcile.dev/core/feedingest"
	"strreconcile.dev/core/jobprojector"
	"strreconcile.dev/core/model"
	"strreconcile.dev/core/reconciler"
)

// Store is the slice of the record-store gateway the six fixed steps
// share. Individual steps narrow further where useful (e.g. the job
// steps only ever call UpdateReservation), but sharing one interface
// here keeps Dependencies small.
type Store interface {
	ListLinkedProperties(ctx context.Context) ([]*model.Property, error)
	AllActiveReservations(ctx context.Context) ([]*model.Reservation, error)
	UpdateReservation(ctx context.Context, r *model.Reservation) error
}

// Dependencies wires the already-constructed C1/C2/C5/C6/C7 components
// into the six fixed steps spec §4.9 names.
type Dependencies struct {
	Store       Store
	Reconciler  *reconciler.Reconciler
	Projector   *jobprojector.Projector
	FeedPool    *feedingest.Pool
	FetchFeed   feedingest.Fetcher
	NewTracker  func() *feedingest.SessionTracker

	CSVProcessDir string
	CSVDoneDir    string

	Now      func() time.Time
	Location *time.Location
}

func (d Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dependencies) location() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.UTC
}

// BuildSteps assembles the fixed sequence spec §4.9 names, in that exact
// order: CSV ingest, calendar ingest, reconciler flush, job projection,
// sync verification, job reconciliation.
func BuildSteps(deps Dependencies) []Step {
	return []Step{
		{Name: "csv_ingest", Run: func(ctx context.Context) StepResult { return runCSVIngest(ctx, deps) }},
		{Name: "calendar_ingest", Run: func(ctx context.Context) StepResult { return runCalendarIngest(ctx, deps) }},
		{Name: "reconciler_flush", Run: func(ctx context.Context) StepResult { return runReconcilerFlush(ctx, deps) }},
		{Name: "job_projection", Run: func(ctx context.Context) StepResult { return runJobProjection(ctx, deps) }},
		{Name: "sync_verification", Run: func(ctx context.Context) StepResult { return runSyncVerification(ctx, deps) }},
		{Name: "job_reconciliation", Run: func(ctx context.Context) StepResult { return runJobReconciliation(ctx, deps) }},
	}
}

// runCSVIngest implements spec §4.4's file side: every *.csv file sitting
// in CSVProcessDir is parsed against the current property list, its
// events handed to the reconciler one at a time, and the file archived
// into CSVDoneDir on success (csvingest.MoveProcessed's atomicity rule:
// a file that fails partway is left for the next run to retry).
func runCSVIngest(ctx context.Context, deps Dependencies) StepResult {
	entries, err := os.ReadDir(deps.CSVProcessDir)
	if os.IsNotExist(err) {
		return StepResult{Success: true, Message: "no CSV process directory configured"}
	}
	if err != nil {
		return StepResult{Success: false, Message: fmt.Sprintf("read CSV process dir: %v", err)}
	}

	properties, err := deps.Store.ListLinkedProperties(ctx)
	if err != nil {
		return StepResult{Success: false, Message: fmt.Sprintf("list properties: %v", err)}
	}

	today := model.NewDate(deps.now(), deps.location())
	filesProcessed, eventsApplied, malformed := 0, 0, 0

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".csv" {
			continue
		}
		path := filepath.Join(deps.CSVProcessDir, entry.Name())

		f, err := os.Open(path)
		if err != nil {
			return StepResult{Success: false, Message: fmt.Sprintf("open %s: %v", entry.Name(), err)}
		}
		result, parseErr := csvingest.Parse(f, entry.Name(), properties, today)
		f.Close()
		if parseErr != nil {
			malformed++
			continue
		}

		success := true
		for _, ev := range result.Events {
			rcEvent := reconciler.Event{
				UID:              ev.UID,
				FeedURL:          ev.Source,
				PropertyID:       ev.PropertyID,
				CheckIn:          ev.CheckIn,
				CheckOut:         ev.CheckOut,
				EntryType:        ev.EntryType,
				ServiceType:      ev.ServiceType,
				SupplierInfo:     ev.SupplierInfo,
				RemovalRequested: ev.RemovalRequested,
			}
			if err := deps.Reconciler.ProcessEvent(ctx, rcEvent); err != nil {
				success = false
				continue
			}
			eventsApplied++
		}

		if err := csvingest.MoveProcessed(path, deps.CSVDoneDir, deps.now(), success); err != nil {
			return StepResult{Success: false, Message: fmt.Sprintf("archive %s: %v", entry.Name(), err)}
		}
		if success {
			filesProcessed++
		}
	}

	return StepResult{
		Success: malformed == 0,
		Message: fmt.Sprintf("%d file(s) processed, %d event(s) applied, %d malformed", filesProcessed, eventsApplied, malformed),
		Stats: map[string]interface{}{
			"files_processed": filesProcessed,
			"events_applied":  eventsApplied,
			"malformed":       malformed,
		},
	}
}

// runCalendarIngest implements spec §4.5: fetch every property's feed
// concurrently, parse each into events, feed them to the reconciler, then
// run the removal-safety sweep over every feed actually fetched this run
// (spec §4.6.1's cross-UID rescue needs the whole run's SessionTracker,
// which is why ingest and removal evaluation share one tracker instance
// per run rather than per feed).
func runCalendarIngest(ctx context.Context, deps Dependencies) StepResult {
	properties, err := deps.Store.ListLinkedProperties(ctx)
	if err != nil {
		return StepResult{Success: false, Message: fmt.Sprintf("list properties: %v", err)}
	}

	var sources []feedingest.FeedSource
	for _, p := range properties {
		if p.FeedURL == "" {
			continue
		}
		sources = append(sources, feedingest.FeedSource{PropertyID: p.ID, URL: p.FeedURL})
	}
	if len(sources) == 0 {
		return StepResult{Success: true, Message: "no feeds configured"}
	}

	outcomes, stats := deps.FeedPool.FetchAll(ctx, sources, deps.FetchFeed)

	tracker := feedingest.NewSessionTracker()
	if deps.NewTracker != nil {
		tracker = deps.NewTracker()
	}

	today := model.NewDate(deps.now(), deps.location())
	coveredFeedURLs := make(map[string]bool, len(outcomes))
	eventsApplied, parseFailed := 0, 0

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			continue
		}
		coveredFeedURLs[outcome.Source.URL] = true

		result, err := feedingest.ParseFeed(outcome.Body, outcome.Source, today, tracker)
		if err != nil {
			parseFailed++
			continue
		}
		for _, ev := range result.Events {
			rcEvent := reconciler.Event{
				UID:         ev.UID,
				FeedURL:     ev.FeedURL,
				PropertyID:  ev.PropertyID,
				CheckIn:     ev.CheckIn,
				CheckOut:    ev.CheckOut,
				EntryType:   ev.EntryType,
				ServiceType: ev.ServiceType,
			}
			if err := deps.Reconciler.ProcessEvent(ctx, rcEvent); err == nil {
				eventsApplied++
			}
		}
	}

	active, err := deps.Store.AllActiveReservations(ctx)
	if err != nil {
		return StepResult{Success: false, Message: fmt.Sprintf("list active reservations: %v", err)}
	}
	if err := deps.Reconciler.EvaluateRemovals(ctx, active, coveredFeedURLs, tracker, tracker); err != nil {
		return StepResult{Success: false, Message: fmt.Sprintf("evaluate removals: %v", err)}
	}

	return StepResult{
		Success: parseFailed == 0,
		Message: fmt.Sprintf("%d/%d feed(s) fetched, %d event(s) applied, %d parse failure(s)", stats.Succeeded, stats.Attempted, eventsApplied, parseFailed),
		Stats: map[string]interface{}{
			"feeds_attempted": stats.Attempted,
			"feeds_succeeded": stats.Succeeded,
			"feeds_failed":    stats.Failed,
			"events_applied":  eventsApplied,
			"parse_failed":    parseFailed,
		},
	}
}

// runReconcilerFlush implements spec §4.6.2's flag recomputation pass: it
// re-derives same-day/overlapping/owner-arriving/long-term-guest flags
// across the whole active set (now that this run's ingest is done) and
// persists only the records whose flags actually changed.
func runReconcilerFlush(ctx context.Context, deps Dependencies) StepResult {
	active, err := deps.Store.AllActiveReservations(ctx)
	if err != nil {
		return StepResult{Success: false, Message: fmt.Sprintf("list active reservations: %v", err)}
	}

	changed := reconciler.RecomputeFlags(active)
	for _, r := range changed {
		if err := deps.Store.UpdateReservation(ctx, r); err != nil {
			return StepResult{Success: false, Message: fmt.Sprintf("persist flag recompute: %v", err)}
		}
	}

	return StepResult{
		Success: true,
		Message: fmt.Sprintf("%d record(s) updated", len(changed)),
		Stats:   map[string]interface{}{"records_updated": len(changed)},
	}
}

// propertyIndex groups active reservations and resolves each one's
// Property, the shape jobprojector.EnsureJob needs for its group
// argument (spec §4.7's service-line description looks at sibling
// entries at the same property).
func propertyIndex(properties []*model.Property, active []*model.Reservation) (map[string]*model.Property, map[string][]*model.Reservation) {
	byID := make(map[string]*model.Property, len(properties))
	for _, p := range properties {
		byID[p.ID] = p
	}
	groups := make(map[string][]*model.Reservation)
	for _, r := range active {
		groups[r.PropertyID] = append(groups[r.PropertyID], r)
	}
	return byID, groups
}

// runJobProjection implements spec §4.7's top-level rule across the whole
// active set: every record with a resolved Final Service Time gets a
// downstream job ensured.
func runJobProjection(ctx context.Context, deps Dependencies) StepResult {
	active, err := deps.Store.AllActiveReservations(ctx)
	if err != nil {
		return StepResult{Success: false, Message: fmt.Sprintf("list active reservations: %v", err)}
	}
	properties, err := deps.Store.ListLinkedProperties(ctx)
	if err != nil {
		return StepResult{Success: false, Message: fmt.Sprintf("list properties: %v", err)}
	}
	byID, groups := propertyIndex(properties, active)

	projected, failed := 0, 0
	for _, r := range active {
		if r.FinalServiceTime.IsZero() {
			continue
		}
		property := byID[r.PropertyID]
		group := groups[r.PropertyID]
		if err := deps.Projector.EnsureJob(ctx, r, property, group); err != nil {
			failed++
			continue
		}
		projected++
	}

	return StepResult{
		Success: failed == 0,
		Message: fmt.Sprintf("%d job(s) ensured, %d failure(s)", projected, failed),
		Stats:   map[string]interface{}{"ensured": projected, "failed": failed},
	}
}

// runSyncVerification implements spec §4.7.1 across the whole active
// set: every record carrying a job id gets its schedule re-checked
// against the downstream job.
func runSyncVerification(ctx context.Context, deps Dependencies) StepResult {
	active, err := deps.Store.AllActiveReservations(ctx)
	if err != nil {
		return StepResult{Success: false, Message: fmt.Sprintf("list active reservations: %v", err)}
	}

	checked, diverged, failed := 0, 0, 0
	for _, r := range active {
		if r.JobID == "" {
			continue
		}
		updated, err := deps.Projector.VerifySync(ctx, r)
		if err != nil {
			failed++
			continue
		}
		checked++
		if updated == nil {
			continue
		}
		if updated.SyncStatus != model.SyncStatusSynced {
			diverged++
		}
		if err := deps.Store.UpdateReservation(ctx, updated); err != nil {
			failed++
		}
	}

	return StepResult{
		Success: failed == 0,
		Message: fmt.Sprintf("%d checked, %d diverged, %d failure(s)", checked, diverged, failed),
		Stats:   map[string]interface{}{"checked": checked, "diverged": diverged, "failed": failed},
	}
}

// runJobReconciliation is the final consistency sweep spec §4.9 names as
// "job reconciliation": webhook-driven job-status updates (C8) and this
// run's own sync-verification pass (C7) race each other per spec §5's
// last-write-wins note, so a record can end this run with a terminal
// JobStatus (Completed/Canceled) while its SyncStatus still reflects an
// earlier divergence. This step re-verifies sync for exactly that subset,
// the one place a stale divergence reading would otherwise persist
// indefinitely since nothing else re-checks a terminal job.
func runJobReconciliation(ctx context.Context, deps Dependencies) StepResult {
	active, err := deps.Store.AllActiveReservations(ctx)
	if err != nil {
		return StepResult{Success: false, Message: fmt.Sprintf("list active reservations: %v", err)}
	}

	reconciled, failed := 0, 0
	for _, r := range active {
		if r.JobID == "" {
			continue
		}
		terminal := r.JobStatus == model.JobStatusCompleted || r.JobStatus == model.JobStatusCanceled
		if !terminal || r.SyncStatus == model.SyncStatusSynced {
			continue
		}

		updated, err := deps.Projector.VerifySync(ctx, r)
		if err != nil {
			failed++
			continue
		}
		if updated == nil {
			continue
		}
		if err := deps.Store.UpdateReservation(ctx, updated); err != nil {
			failed++
			continue
		}
		reconciled++
	}

	return StepResult{
		Success: failed == 0,
		Message: fmt.Sprintf("%d terminal job(s) reconciled, %d failure(s)", reconciled, failed),
		Stats:   map[string]interface{}{"reconciled": reconciled, "failed": failed},
	}
}
