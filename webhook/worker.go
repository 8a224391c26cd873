package webhook

import (
	"context"
	"strings"
	"sync"

	"strreconcile.dev/core/jobprojector"
	"strreconcile.dev/core/logging"
	"strreconcile.dev/core/model"
)

// Store is the narrow slice of the record-store gateway a worker needs:
// look up the active record a job id names, and persist the fields the
// webhook path owns.
type Store interface {
	ActiveReservationByJobID(ctx context.Context, jobID string) (*model.Reservation, error)
	UpdateReservation(ctx context.Context, r *model.Reservation) error
}

// Pool is the M-worker pool draining a Queue (spec §4.8, §5 "Webhook
// worker pool (C8): M workers draining the event queue; M small (default
// 4). Workers are idempotent on a per-event basis."). Grounded on the
// teacher's worker.Pool (worker/pool.go), adapted from its named-queue/
// JobProcessor shape to a single typed Queue and a fixed per-event
// handler, since C8 has exactly one event shape per Kind rather than an
// open set of job types.
type Pool struct {
	queue   *Queue
	store   Store
	workers int
	logger  *logging.ContextLogger
}

// NewPool builds a Pool with workers goroutines (spec §6.5
// webhook_workers, default 4).
func NewPool(queue *Queue, store Store, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{queue: queue, store: store, workers: workers, logger: logging.New("webhook_worker")}
}

// Run starts p.workers goroutines draining the queue until ctx is
// canceled, then waits for all of them to finish their in-flight event.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		ev, ok := p.queue.Dequeue(ctx)
		if !ok {
			return
		}
		p.handle(ctx, ev)
	}
}

func (p *Pool) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case KindFieldService:
		p.handleFieldService(ctx, ev)
	case KindEmail:
		// Email events are already durable on disk (the handler writes the
		// CSV attachment before enqueueing); nothing further to do here.
	default:
		p.logger.WithField("kind", string(ev.Kind)).Warn("dropping webhook event of unknown kind")
	}
}

// handleFieldService implements spec §4.8's event→record mapping: look up
// the active record whose job id matches, apply the status/schedule
// update using the same status map C7 uses, and drop events naming an
// old_-prefixed job id outright since no active record can legitimately
// carry one.
func (p *Pool) handleFieldService(ctx context.Context, ev Event) {
	logger := p.logger.WithField("job_id", ev.JobID)

	if ev.JobID == "" {
		logger.Warn("dropping field-service event with no job id")
		return
	}
	if strings.HasPrefix(ev.JobID, model.OldJobIDPrefix) {
		logger.Debug("dropping field-service event naming a superseded job id")
		return
	}

	record, err := p.store.ActiveReservationByJobID(ctx, ev.JobID)
	if err != nil {
		logger.WithError(err).Error("failed to look up reservation for field-service event")
		return
	}
	if record == nil {
		logger.Debug("no active reservation matches field-service event job id")
		return
	}

	updated := record.Clone()
	updated.RecordID = record.RecordID
	updated.JobStatus = jobprojector.MapJobStatus(ev.RawStatus)
	if !ev.ScheduledAt.IsZero() {
		updated.ScheduledServiceTime = ev.ScheduledAt
	}

	if err := p.store.UpdateReservation(ctx, updated); err != nil {
		logger.WithError(err).Error("failed to persist webhook-driven job status update")
	}
}
