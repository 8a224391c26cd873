package feedingest

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"strreconcile.dev/core/identity"
	"strreconcile.dev/core/model"
)

// Event is one normalized calendar event, ready for the reconciler.
type Event struct {
	UID         string
	FeedURL     string
	PropertyID  string
	CheckIn     model.Date
	CheckOut    model.Date
	EntryType   model.EntryType
	ServiceType model.ServiceType
}

// ParseResult accumulates per-feed statistics (spec §4.5: "events seen,
// events dropped").
type ParseResult struct {
	Events            []Event
	EventsSeen        int
	OutOfWindow       int
	DuplicateIgnored  int
}

var blockKeywords = []string{"block", "maintenance", "owner"}

// ParseFeed extracts events from an iCalendar payload for one property's
// feed, applying the [-6mo, +3mo] window, the session tracker's
// first-fingerprint-wins dedup (spec §4.5), and block/reservation
// classification from the event's summary or its CLASS property.
func ParseFeed(body []byte, source FeedSource, today model.Date, tracker *SessionTracker) (*ParseResult, error) {
	cal, err := ical.ParseCalendar(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("feedingest: parse calendar: %w", err)
	}

	result := &ParseResult{}

	for _, vevent := range cal.Events() {
		result.EventsSeen++

		uidProp := vevent.GetProperty(ical.ComponentPropertyUniqueId)
		if uidProp == nil {
			continue
		}
		uid := uidProp.Value

		start, err := vevent.GetStartAt()
		if err != nil {
			continue
		}
		end, err := vevent.GetEndAt()
		if err != nil {
			continue
		}

		checkIn := model.NewDate(start, start.Location())
		checkOut := model.NewDate(end, end.Location())

		if !csvWindow(checkIn, today) {
			result.OutOfWindow++
			continue
		}

		entryType, serviceType := classifyEvent(vevent)

		fp := identity.Fingerprint{
			PropertyID: source.PropertyID,
			CheckIn:    checkIn,
			CheckOut:   checkOut,
			EntryType:  entryType,
		}

		// Within-run dedup MUST happen before any lookup by uid (spec
		// §4.5) — a dynamic-UID source would otherwise produce an
		// unbounded stream of "new" records every run.
		if !tracker.ClaimFingerprint(fp, uid) {
			result.DuplicateIgnored++
			continue
		}
		tracker.ObserveUID(source.URL, uid)

		result.Events = append(result.Events, Event{
			UID:         uid,
			FeedURL:     source.URL,
			PropertyID:  source.PropertyID,
			CheckIn:     checkIn,
			CheckOut:    checkOut,
			EntryType:   entryType,
			ServiceType: serviceType,
		})
	}

	return result, nil
}

func classifyEvent(vevent *ical.VEvent) (model.EntryType, model.ServiceType) {
	summary := ""
	if p := vevent.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = strings.ToLower(p.Value)
	}
	class := ""
	if p := vevent.GetProperty(ical.ComponentPropertyClass); p != nil {
		class = strings.ToLower(p.Value)
	}

	for _, kw := range blockKeywords {
		if strings.Contains(summary, kw) || strings.Contains(class, kw) {
			return model.EntryTypeBlock, model.ServiceTypeTurnover
		}
	}
	return model.EntryTypeReservation, model.ServiceTypeTurnover
}

// csvWindow duplicates csvingest.Window's bounds so feedingest doesn't
// import csvingest for one function; both ingest paths share the same
// [-6mo, +3mo] rule from spec §4.4/§4.5.
func csvWindow(d model.Date, today model.Date) bool {
	lower := today.Time(time.UTC).AddDate(0, -6, 0)
	upper := today.Time(time.UTC).AddDate(0, 3, 0)
	t := d.Time(time.UTC)
	return !t.Before(lower) && !t.After(upper)
}
