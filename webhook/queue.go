package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"strreconcile.dev/core/logging"
)

// Event is the normalized unit the HTTP handler enqueues and a worker
// drains, spanning both webhook kinds (spec §4.8). Kind distinguishes
// which the handler received; only FieldService events carry a JobID.
type Event struct {
	Kind        Kind      `json:"kind"`
	ReceivedAt  time.Time `json:"received_at"`
	JobID       string    `json:"job_id,omitempty"`
	RawStatus   string    `json:"raw_status,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
	Raw         []byte    `json:"raw"`
}

// Kind identifies which endpoint produced an Event.
type Kind string

const (
	KindFieldService Kind = "field_service"
	KindEmail        Kind = "email"
)

// Queue is the bounded in-process handoff between the HTTP handler and the
// worker pool draining it (spec §4.8 "Handoff"). When the buffered channel
// is full, Enqueue never blocks the caller: it spills the event to a
// disk-backed overflow file and still reports success, matching "new events
// are recorded to a disk-backed overflow file and the handler still
// returns 200."
type Queue struct {
	ch          chan Event
	overflowDir string
	logger      *logging.ContextLogger
}

// NewQueue builds a Queue with the given capacity (spec §6.5
// webhook_queue_capacity, default 1000), spilling overflow events as
// newline-delimited JSON files under overflowDir (spec §6.4
// webhook_overflow/).
func NewQueue(capacity int, overflowDir string) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Queue{
		ch:          make(chan Event, capacity),
		overflowDir: overflowDir,
		logger:      logging.New("webhook_queue"),
	}
}

// Enqueue hands ev to a worker, or spills it to disk when the queue is
// saturated. It never returns an error to a caller that should still
// answer 200: disk-spill failure is logged, not propagated, since there is
// nothing further the always-200 contract allows the handler to do about
// it.
func (q *Queue) Enqueue(ev Event) {
	select {
	case q.ch <- ev:
		return
	default:
	}

	if err := q.spill(ev); err != nil {
		q.logger.WithError(err).Error("webhook event lost: queue full and overflow write failed")
	}
}

// Dequeue blocks until an event is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// Len reports how many events are currently buffered, for tests and
// metrics.
func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) spill(ev Event) error {
	if err := os.MkdirAll(q.overflowDir, 0o755); err != nil {
		return fmt.Errorf("webhook: create overflow dir: %w", err)
	}

	name := time.Now().UTC().Format("20060102T150405.000000000") + "_" + uuid.NewString() + ".ndjson"
	path := filepath.Join(q.overflowDir, name)

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: encode overflow event: %w", err)
	}
	raw = append(raw, '\n')

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("webhook: write overflow file %s: %w", path, err)
	}

	q.logger.WithField("path", path).Warn("webhook queue saturated, event spilled to disk")
	return nil
}

// LoadOverflow reads every overflow file under dir and returns their
// decoded events, oldest file name first (spill names start with a UTC
// timestamp). It serves a replay pass over events a prior saturated queue
// spilled to disk; each successfully decoded file is left for the caller
// to remove once its event has been re-enqueued.
func LoadOverflow(dir string) ([]OverflowRecord, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("webhook: read overflow dir: %w", err)
	}

	var out []OverflowRecord
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("webhook: read overflow file %s: %w", path, err)
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("webhook: decode overflow file %s: %w", path, err)
		}
		out = append(out, OverflowRecord{Path: path, Event: ev})
	}
	return out, nil
}

// OverflowRecord pairs a spilled Event with the file it was read from, so
// a replay loop can remove the file once handled.
type OverflowRecord struct {
	Path  string
	Event Event
}
