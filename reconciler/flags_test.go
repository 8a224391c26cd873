package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strreconcile.dev/core/model"
)

func TestRecomputeFlags_OverlappingDates(t *testing.T) {
	a := &model.Reservation{
		RecordID: "a", PropertyID: "p1", EntryType: model.EntryTypeReservation,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 1}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 10},
	}
	b := &model.Reservation{
		RecordID: "b", PropertyID: "p1", EntryType: model.EntryTypeReservation,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 5}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 12},
	}

	changed := RecomputeFlags([]*model.Reservation{a, b})
	require.Len(t, changed, 2)
	for _, r := range changed {
		assert.True(t, r.OverlappingDates)
	}
}

func TestRecomputeFlags_SameDayTurnoverDerivedFromAdjacency(t *testing.T) {
	departing := &model.Reservation{
		RecordID: "dep", PropertyID: "p1", EntryType: model.EntryTypeReservation,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 1}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 5},
	}
	arriving := &model.Reservation{
		RecordID: "arr", PropertyID: "p1", EntryType: model.EntryTypeReservation,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 5}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 9},
	}

	changed := RecomputeFlags([]*model.Reservation{departing, arriving})
	require.Len(t, changed, 1)
	assert.Equal(t, "dep", changed[0].RecordID)
	assert.True(t, changed[0].SameDayTurnover)
}

func TestRecomputeFlags_OwnerArrivingSuppressesDerivedSameDay(t *testing.T) {
	departing := &model.Reservation{
		RecordID: "dep", PropertyID: "p1", EntryType: model.EntryTypeReservation,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 1}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 5},
		SameDayTurnover: true,
	}
	ownerBlock := &model.Reservation{
		RecordID: "block", PropertyID: "p1", EntryType: model.EntryTypeBlock,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 5}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 10},
	}

	changed := RecomputeFlags([]*model.Reservation{departing, ownerBlock})
	for _, r := range changed {
		if r.RecordID == "dep" {
			assert.True(t, r.OwnerArriving)
			assert.True(t, r.SameDayTurnover, "owner-arriving preserves existing same-day value")
		}
	}
}

func TestRecomputeFlags_ITripSourcedPreservesExistingSameDay(t *testing.T) {
	departing := &model.Reservation{
		RecordID: "dep", UID: "itrip_abc123", PropertyID: "p1", EntryType: model.EntryTypeReservation,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 1}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 5},
		SameDayTurnover: false,
	}
	// A genuine adjacent arrival that would normally derive SameDayTurnover=true.
	arriving := &model.Reservation{
		RecordID: "arr", PropertyID: "p1", EntryType: model.EntryTypeReservation,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 5}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 9},
	}

	changed := RecomputeFlags([]*model.Reservation{departing, arriving})
	for _, r := range changed {
		if r.RecordID == "dep" {
			t.Fatal("iTrip-sourced same-day override should not be reported as changed when preserved")
		}
	}
}

func TestRecomputeFlags_LongTermGuest(t *testing.T) {
	r := &model.Reservation{
		RecordID: "long", PropertyID: "p1", EntryType: model.EntryTypeReservation,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 1}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 20},
	}
	changed := RecomputeFlags([]*model.Reservation{r})
	require.Len(t, changed, 1)
	assert.True(t, changed[0].LongTermGuest)
}

func TestRecomputeFlags_NoChangeOmitsRecord(t *testing.T) {
	r := &model.Reservation{
		RecordID: "solo", PropertyID: "p1", EntryType: model.EntryTypeReservation,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 1}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 3},
	}
	changed := RecomputeFlags([]*model.Reservation{r})
	assert.Len(t, changed, 0)
}

func TestRecomputeFlags_SkipsOldStatus(t *testing.T) {
	r := &model.Reservation{
		RecordID: "old", PropertyID: "p1", EntryType: model.EntryTypeReservation, Status: model.StatusOld,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 1}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 20},
	}
	changed := RecomputeFlags([]*model.Reservation{r})
	assert.Len(t, changed, 0)
}

func TestNextEntryIsOwnerArrival_RequiresBlockWithinOneDay(t *testing.T) {
	r := &model.Reservation{
		RecordID: "dep", PropertyID: "p1", EntryType: model.EntryTypeReservation,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 1}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 5},
	}
	farBlock := &model.Reservation{
		RecordID: "block", PropertyID: "p1", EntryType: model.EntryTypeBlock,
		CheckIn: model.Date{Year: 2026, Month: 8, Day: 10}, CheckOut: model.Date{Year: 2026, Month: 8, Day: 15},
	}
	assert.False(t, nextEntryIsOwnerArrival(r, []*model.Reservation{r, farBlock}))
}
