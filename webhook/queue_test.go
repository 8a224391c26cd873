package webhook

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueueDequeueRoundTrips(t *testing.T) {
	q := NewQueue(2, t.TempDir())
	ev := Event{Kind: KindFieldService, JobID: "job-1", RawStatus: "scheduled"}

	q.Enqueue(ev)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := q.Dequeue(ctx)
	require.True(t, ok)
	assert.Equal(t, "job-1", got.JobID)
}

func TestQueue_DequeueReturnsFalseOnCanceledContext(t *testing.T) {
	q := NewQueue(1, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.Dequeue(ctx)
	assert.False(t, ok)
}

func TestQueue_SpillsToDiskWhenSaturated(t *testing.T) {
	dir := t.TempDir()
	q := NewQueue(1, dir)

	q.Enqueue(Event{Kind: KindFieldService, JobID: "job-1"}) // fills the one buffered slot
	q.Enqueue(Event{Kind: KindFieldService, JobID: "job-2"}) // spills

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	var spilled Event
	require.NoError(t, json.Unmarshal(raw, &spilled))
	assert.Equal(t, "job-2", spilled.JobID)

	assert.Equal(t, 1, q.Len())
}

func TestLoadOverflow_ReturnsNilWhenDirMissing(t *testing.T) {
	out, err := LoadOverflow(filepath.Join(t.TempDir(), "nonexistent"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestLoadOverflow_DecodesSpilledEvents(t *testing.T) {
	dir := t.TempDir()
	q := NewQueue(0, dir)
	q.ch = make(chan Event) // force every enqueue to spill
	q.Enqueue(Event{Kind: KindFieldService, JobID: "job-3"})

	records, err := LoadOverflow(dir)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "job-3", records[0].Event.JobID)
}
