package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strreconcile.dev/core/feedingest"
	"strreconcile.dev/core/fieldservice"
	"strreconcile.dev/core/jobprojector"
	"strreconcile.dev/core/model"
	"strreconcile.dev/core/reconciler"
)

// fakeStepsStore is an in-memory double for orchestrator.Store, grounded
// on reconciler_test.go's fakeStore call-tracking style.
type fakeStepsStore struct {
	properties []*model.Property
	records    map[string]*model.Reservation
	nextID     int
	updateCalls []*model.Reservation
}

func newFakeStepsStore(properties ...*model.Property) *fakeStepsStore {
	return &fakeStepsStore{properties: properties, records: make(map[string]*model.Reservation)}
}

func (s *fakeStepsStore) seed(r *model.Reservation) *model.Reservation {
	s.nextID++
	r.RecordID = fmt.Sprintf("rec%d", s.nextID)
	cp := *r
	s.records[r.RecordID] = &cp
	return &cp
}

func (s *fakeStepsStore) ListLinkedProperties(ctx context.Context) ([]*model.Property, error) {
	return s.properties, nil
}

func (s *fakeStepsStore) AllActiveReservations(ctx context.Context) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, r := range s.records {
		if r.Status != model.StatusOld {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStepsStore) ActiveReservationsForKey(ctx context.Context, key model.Key) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, r := range s.records {
		if r.UID == key.UID && r.FeedURL == key.FeedURL && r.Status != model.StatusOld {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStepsStore) CreateReservation(ctx context.Context, r *model.Reservation, idempotencyKey string) (*model.Reservation, error) {
	return s.seed(r), nil
}

func (s *fakeStepsStore) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	cp := *r
	s.updateCalls = append(s.updateCalls, &cp)
	if _, ok := s.records[r.RecordID]; !ok {
		return fmt.Errorf("fakeStepsStore: unknown record %s", r.RecordID)
	}
	updated := *r
	s.records[r.RecordID] = &updated
	return nil
}

func testReconciler(store reconciler.Store, now time.Time) *reconciler.Reconciler {
	cfg := reconciler.DefaultConfig()
	cfg.Now = func() time.Time { return now }
	cfg.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return reconciler.New(store, cfg)
}

// fakeFS is an in-memory double for jobprojector.FieldServiceClient.
type fakeFS struct {
	createCalls []fieldservice.CreateJobRequest
	jobs        map[string]*fieldservice.Job
}

func newFakeFS() *fakeFS {
	return &fakeFS{jobs: make(map[string]*fieldservice.Job)}
}

func (f *fakeFS) CreateJob(ctx context.Context, r fieldservice.CreateJobRequest) (*fieldservice.Job, error) {
	f.createCalls = append(f.createCalls, r)
	id := fmt.Sprintf("job-%d", len(f.createCalls))
	job := &fieldservice.Job{ID: id, AppointmentID: "appt-" + id, ScheduledTime: r.RequestedTime, Status: "Unscheduled"}
	f.jobs[id] = job
	return job, nil
}

func (f *fakeFS) GetJob(ctx context.Context, jobID string) (*fieldservice.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("fakeFS: unknown job %s", jobID)
	}
	return job, nil
}

func (f *fakeFS) CloneTemplateLineItems(ctx context.Context, jobID, templateID string) ([]fieldservice.LineItem, error) {
	return []fieldservice.LineItem{{ID: "li-1", Name: "Standard Clean"}}, nil
}

func (f *fakeFS) UpdateLineItemName(ctx context.Context, jobID, lineItemID, name string) error {
	return nil
}

func testProjector(fs *fakeFS, store jobprojector.Store, now time.Time) *jobprojector.Projector {
	cfg := jobprojector.DefaultConfig()
	cfg.Now = func() time.Time { return now }
	cfg.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	cfg.AssignedEmployeeID = "emp-1"
	return jobprojector.New(fs, store, cfg)
}

const itripCSV = "Property Name,Check In,Check Out,Guest Name,Status,Notes\n" +
	"Ocean View,08/10/2026,08/14/2026,Jane Doe,Booked,\n"

func TestRunCSVIngest_ProcessesFileAndArchivesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	processDir := filepath.Join(dir, "process")
	doneDir := filepath.Join(dir, "done")
	require.NoError(t, os.MkdirAll(processDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(processDir, "itrip.csv"), []byte(itripCSV), 0o644))

	property := &model.Property{ID: "p1", Name: "Ocean View"}
	store := newFakeStepsStore(property)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	deps := Dependencies{
		Store:         store,
		Reconciler:    testReconciler(store, now),
		CSVProcessDir: processDir,
		CSVDoneDir:    doneDir,
		Now:           func() time.Time { return now },
	}

	result := runCSVIngest(context.Background(), deps)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Stats["files_processed"])
	assert.Equal(t, 1, result.Stats["events_applied"])
	assert.Equal(t, 1, len(store.records))

	_, err := os.Stat(filepath.Join(processDir, "itrip.csv"))
	assert.True(t, os.IsNotExist(err), "processed file should be moved out of the process dir")
}

func TestRunCSVIngest_NoDirectoryIsNotAFailure(t *testing.T) {
	store := newFakeStepsStore()
	deps := Dependencies{
		Store:         store,
		Reconciler:    testReconciler(store, time.Now()),
		CSVProcessDir: filepath.Join(t.TempDir(), "missing"),
	}

	result := runCSVIngest(context.Background(), deps)
	assert.True(t, result.Success)
}

const sampleCalendarICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//Test//EN
BEGIN:VEVENT
UID:abc-123
DTSTART:20260801T150000Z
DTEND:20260805T110000Z
SUMMARY:Reservation for John Smith
END:VEVENT
END:VCALENDAR
`

func TestRunCalendarIngest_FetchesParsesAndAppliesEvents(t *testing.T) {
	property := &model.Property{ID: "p1", Name: "Ocean View", FeedURL: "https://feed.example/a.ics"}
	store := newFakeStepsStore(property)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	fetch := func(ctx context.Context, url string) ([]byte, error) {
		return []byte(sampleCalendarICS), nil
	}

	deps := Dependencies{
		Store:      store,
		Reconciler: testReconciler(store, now),
		FeedPool:   feedingest.NewPool(4, 5*time.Second),
		FetchFeed:  fetch,
		Now:        func() time.Time { return now },
	}

	result := runCalendarIngest(context.Background(), deps)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Stats["feeds_succeeded"])
	assert.Equal(t, 1, result.Stats["events_applied"])
	assert.Equal(t, 1, len(store.records))
}

func TestRunCalendarIngest_NoFeedsConfigured(t *testing.T) {
	store := newFakeStepsStore(&model.Property{ID: "p1", Name: "No Feed"})
	deps := Dependencies{
		Store:      store,
		Reconciler: testReconciler(store, time.Now()),
		FeedPool:   feedingest.NewPool(4, 5*time.Second),
		FetchFeed:  func(ctx context.Context, url string) ([]byte, error) { return nil, nil },
	}

	result := runCalendarIngest(context.Background(), deps)
	assert.True(t, result.Success)
	assert.Equal(t, "no feeds configured", result.Message)
}

func TestRunReconcilerFlush_PersistsOnlyChangedRecords(t *testing.T) {
	store := newFakeStepsStore()
	checkIn := model.Date{Year: 2026, Month: 8, Day: 10}
	checkOut := model.Date{Year: 2026, Month: 8, Day: 10}
	r1 := store.seed(&model.Reservation{PropertyID: "p1", CheckIn: checkIn, CheckOut: checkOut, Status: model.StatusNew})
	r2 := store.seed(&model.Reservation{PropertyID: "p1", CheckIn: checkOut, CheckOut: model.Date{Year: 2026, Month: 8, Day: 12}, Status: model.StatusNew})
	_ = r1
	_ = r2

	deps := Dependencies{Store: store, Reconciler: testReconciler(store, time.Now())}
	result := runReconcilerFlush(context.Background(), deps)

	assert.True(t, result.Success)
	assert.Equal(t, len(store.updateCalls), result.Stats["records_updated"])
}

func TestRunJobProjection_EnsuresJobForRecordsWithFinalServiceTime(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	property := &model.Property{
		ID: "p1", CustomerID: "cust-1", AddressID: "addr-1",
		JobTemplateIDs: map[model.ServiceType]string{model.ServiceTypeTurnover: "tmpl-1"},
		JobTypeIDs:     map[model.ServiceType]string{model.ServiceTypeTurnover: "type-1"},
	}
	store := newFakeStepsStore(property)
	r := store.seed(&model.Reservation{
		PropertyID: "p1", ServiceType: model.ServiceTypeTurnover, Status: model.StatusNew,
		FinalServiceTime: now,
	})
	fs := newFakeFS()
	deps := Dependencies{
		Store:     store,
		Projector: testProjector(fs, store, now),
		Now:       func() time.Time { return now },
	}

	result := runJobProjection(context.Background(), deps)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Stats["ensured"])
	require.Len(t, fs.createCalls, 1)
	assert.Equal(t, 1, len(store.updateCalls))
	_ = r
}

func TestRunJobProjection_SkipsRecordsWithoutFinalServiceTime(t *testing.T) {
	property := &model.Property{ID: "p1"}
	store := newFakeStepsStore(property)
	store.seed(&model.Reservation{PropertyID: "p1", Status: model.StatusNew})
	fs := newFakeFS()
	deps := Dependencies{Store: store, Projector: testProjector(fs, store, time.Now())}

	result := runJobProjection(context.Background(), deps)

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Stats["ensured"])
	assert.Len(t, fs.createCalls, 0)
}

func TestRunSyncVerification_FlagsDivergedSchedule(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStepsStore()
	r := store.seed(&model.Reservation{
		PropertyID: "p1", Status: model.StatusNew, JobID: "job-1",
		FinalServiceTime: now, SyncStatus: model.SyncStatusSynced,
	})
	fs := newFakeFS()
	fs.jobs["job-1"] = &fieldservice.Job{ID: "job-1", Status: "Scheduled", ScheduledTime: now.Add(2 * time.Hour)}
	deps := Dependencies{Store: store, Projector: testProjector(fs, store, now), Now: func() time.Time { return now }}

	result := runSyncVerification(context.Background(), deps)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Stats["checked"])
	assert.Equal(t, 1, result.Stats["diverged"])
	require.Len(t, store.updateCalls, 1)
	assert.Equal(t, model.SyncStatusWrongTime, store.updateCalls[0].SyncStatus)
	_ = r
}

func TestRunJobReconciliation_ReEvaluatesTerminalDivergedJobs(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStepsStore()
	store.seed(&model.Reservation{
		PropertyID: "p1", Status: model.StatusNew, JobID: "job-1",
		FinalServiceTime: now, JobStatus: model.JobStatusCompleted, SyncStatus: model.SyncStatusWrongTime,
	})
	fs := newFakeFS()
	fs.jobs["job-1"] = &fieldservice.Job{ID: "job-1", Status: "Completed", ScheduledTime: now}
	deps := Dependencies{Store: store, Projector: testProjector(fs, store, now), Now: func() time.Time { return now }}

	result := runJobReconciliation(context.Background(), deps)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Stats["reconciled"])
	require.Len(t, store.updateCalls, 1)
	assert.Equal(t, model.SyncStatusSynced, store.updateCalls[0].SyncStatus)
}

func TestRunJobReconciliation_SkipsNonTerminalOrAlreadySyncedRecords(t *testing.T) {
	now := time.Now()
	store := newFakeStepsStore()
	store.seed(&model.Reservation{PropertyID: "p1", Status: model.StatusNew, JobID: "job-1", JobStatus: model.JobStatusScheduled, SyncStatus: model.SyncStatusWrongTime})
	store.seed(&model.Reservation{PropertyID: "p1", Status: model.StatusNew, JobID: "job-2", JobStatus: model.JobStatusCompleted, SyncStatus: model.SyncStatusSynced})
	fs := newFakeFS()
	deps := Dependencies{Store: store, Projector: testProjector(fs, store, now)}

	result := runJobReconciliation(context.Background(), deps)

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Stats["reconciled"])
	assert.Len(t, store.updateCalls, 0)
}

func TestBuildSteps_ReturnsFixedSixStepSequenceInOrder(t *testing.T) {
	steps := BuildSteps(Dependencies{})

	require.Len(t, steps, 6)
	assert.Equal(t, []string{
		"csv_ingest", "calendar_ingest", "reconciler_flush",
		"job_projection", "sync_verification", "job_reconciliation",
	}, stepNames(steps))
}

func stepNames(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}
