package feedingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strreconcile.dev/core/identity"
	"strreconcile.dev/core/model"
)

func TestSessionTracker_ClaimFingerprint_FirstWins(t *testing.T) {
	tracker := NewSessionTracker()
	fp := identity.Fingerprint{PropertyID: "prop-1", EntryType: model.EntryTypeReservation}

	assert.True(t, tracker.ClaimFingerprint(fp, "uid-1"))
	assert.False(t, tracker.ClaimFingerprint(fp, "uid-2"))
}

func TestSessionTracker_ObservedAndRescue(t *testing.T) {
	tracker := NewSessionTracker()
	fp := identity.Fingerprint{PropertyID: "prop-1", EntryType: model.EntryTypeReservation}

	tracker.ClaimFingerprint(fp, "uid-new")
	tracker.ObserveUID("https://feed.example/a.ics", "uid-new")

	assert.True(t, tracker.Observed("https://feed.example/a.ics", "uid-new"))
	assert.False(t, tracker.Observed("https://feed.example/a.ics", "uid-old"))

	uid, ok := tracker.RescueByFingerprint(fp)
	assert.True(t, ok)
	assert.Equal(t, "uid-new", uid)
}

func TestPool_FetchAll_BoundsConcurrency(t *testing.T) {
	var inFlight int32
	var maxInFlight int32

	sources := make([]FeedSource, 10)
	for i := range sources {
		sources[i] = FeedSource{PropertyID: fmt.Sprintf("p%d", i), URL: fmt.Sprintf("https://feed.example/%d.ics", i)}
	}

	pool := NewPool(3, time.Second)
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if n <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return []byte("ok"), nil
	}

	outcomes, stats := pool.FetchAll(context.Background(), sources, fetch)

	assert.Len(t, outcomes, 10)
	assert.Equal(t, 10, stats.Attempted)
	assert.Equal(t, 10, stats.Succeeded)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxInFlight)), 3)
}

func TestPool_FetchAll_PerSourceErrorDoesNotFailBatch(t *testing.T) {
	sources := []FeedSource{
		{PropertyID: "p1", URL: "https://feed.example/ok.ics"},
		{PropertyID: "p2", URL: "https://feed.example/bad.ics"},
	}
	pool := NewPool(2, time.Second)

	fetch := func(ctx context.Context, url string) ([]byte, error) {
		if url == "https://feed.example/bad.ics" {
			return nil, errors.New("timeout")
		}
		return []byte("ok"), nil
	}

	outcomes, stats := pool.FetchAll(context.Background(), sources, fetch)

	require.Len(t, outcomes, 2)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
}

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//Test//EN
BEGIN:VEVENT
UID:abc-123
DTSTART:20260801T150000Z
DTEND:20260805T110000Z
SUMMARY:Reservation for John Smith
END:VEVENT
BEGIN:VEVENT
UID:block-1
DTSTART:20260810T000000Z
DTEND:20260812T000000Z
SUMMARY:Owner Block
END:VEVENT
END:VCALENDAR
`

func TestParseFeed_ExtractsEventsAndClassifies(t *testing.T) {
	tracker := NewSessionTracker()
	source := FeedSource{PropertyID: "prop-1", URL: "https://feed.example/a.ics"}
	today := model.Date{Year: 2026, Month: 7, Day: 31}

	result, err := ParseFeed([]byte(sampleICS), source, today, tracker)
	require.NoError(t, err)
	require.Len(t, result.Events, 2)

	assert.Equal(t, model.EntryTypeReservation, result.Events[0].EntryType)
	assert.Equal(t, model.EntryTypeBlock, result.Events[1].EntryType)
}

func TestParseFeed_DedupesByFingerprintAcrossDynamicUIDs(t *testing.T) {
	const icsOne = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:uid-run-1
DTSTART:20260801T150000Z
DTEND:20260805T110000Z
SUMMARY:Reservation
END:VEVENT
END:VCALENDAR
`
	const icsTwo = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:uid-run-2
DTSTART:20260801T150000Z
DTEND:20260805T110000Z
SUMMARY:Reservation
END:VEVENT
END:VCALENDAR
`
	tracker := NewSessionTracker()
	source := FeedSource{PropertyID: "prop-1", URL: "https://feed.example/a.ics"}
	today := model.Date{Year: 2026, Month: 7, Day: 31}

	first, err := ParseFeed([]byte(icsOne), source, today, tracker)
	require.NoError(t, err)
	assert.Len(t, first.Events, 1)

	second, err := ParseFeed([]byte(icsTwo), source, today, tracker)
	require.NoError(t, err)
	assert.Len(t, second.Events, 0)
	assert.Equal(t, 1, second.DuplicateIgnored)
}

func TestParseFeed_OutOfWindowDropped(t *testing.T) {
	const icsOld = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:uid-old
DTSTART:20200101T150000Z
DTEND:20200105T110000Z
SUMMARY:Reservation
END:VEVENT
END:VCALENDAR
`
	tracker := NewSessionTracker()
	source := FeedSource{PropertyID: "prop-1", URL: "https://feed.example/a.ics"}
	today := model.Date{Year: 2026, Month: 7, Day: 31}

	result, err := ParseFeed([]byte(icsOld), source, today, tracker)
	require.NoError(t, err)
	assert.Len(t, result.Events, 0)
	assert.Equal(t, 1, result.OutOfWindow)
}
