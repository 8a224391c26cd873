package jobprojector

import (
	"fmt"
	"strings"

	"strreconcile.dev/core/model"
)

const maxDescriptionLength = 255

const ellipsis = "…"

// BuildServiceLineDescription composes the first line item's name per spec
// §4.7: custom instructions, then OWNER ARRIVING / LONG TERM GUEST
// DEPARTING markers, then a base name derived from same-day/owner-arriving/
// next-guest adjacency — joined by " - " and capped at 255 characters,
// with the custom-instructions component truncated first on overflow.
//
// group is every other active entry at r's property, used the same way
// reconciler.RecomputeFlags groups records to derive adjacency-based flags;
// this package does not import reconciler to avoid a cross-dependency, so
// the adjacency search is reimplemented here against the caller-supplied
// group.
func BuildServiceLineDescription(r *model.Reservation, group []*model.Reservation) string {
	nearest, hasNearest := nextEntry(r, group)

	base, ownerArrivingVariant := baseName(r, nearest, hasNearest)

	var parts []string
	customIdx := -1
	if r.CustomInstructions != "" {
		parts = append(parts, r.CustomInstructions)
		customIdx = 0
	}
	if r.OwnerArriving && !ownerArrivingVariant {
		parts = append(parts, "OWNER ARRIVING")
	}
	if r.LongTermGuest && !r.OwnerArriving {
		parts = append(parts, "LONG TERM GUEST DEPARTING")
	}
	parts = append(parts, base)

	joined := strings.Join(parts, " - ")
	if len([]rune(joined)) <= maxDescriptionLength {
		return joined
	}
	if customIdx < 0 {
		return truncateRunes(joined, maxDescriptionLength)
	}

	overflow := len([]rune(joined)) - maxDescriptionLength
	budget := len([]rune(parts[customIdx])) - overflow - len([]rune(ellipsis))
	if budget < 0 {
		budget = 0
	}
	parts[customIdx] = truncateRunes(parts[customIdx], budget) + ellipsis
	return strings.Join(parts, " - ")
}

// baseName implements the fourth composition rule. The returned bool
// reports whether this is the "OWNER ARRIVING ... {Month D}" variant,
// which replaces the standalone OWNER ARRIVING component rather than
// appearing alongside it.
func baseName(r *model.Reservation, nearest *model.Reservation, hasNearest bool) (string, bool) {
	serviceLabel := string(r.ServiceType)

	if r.SameDayTurnover {
		return fmt.Sprintf("SAME DAY %s STR", serviceLabel), false
	}

	if hasNearest && nearest.EntryType == model.EntryTypeBlock {
		gap := r.CheckOut.Nights(nearest.CheckIn)
		if gap >= 0 && gap <= 1 {
			return fmt.Sprintf("OWNER ARRIVING %s STR %s", serviceLabel, formatMonthDay(nearest.CheckIn)), true
		}
	}

	if hasNearest && nearest.EntryType == model.EntryTypeReservation {
		return fmt.Sprintf("%s STR Next Guest %s", serviceLabel, formatMonthDay(nearest.CheckIn)), false
	}

	return fmt.Sprintf("%s STR Next Guest Unknown", serviceLabel), false
}

// nextEntry finds the entry at the same property nearest to (on or after)
// r's check-out, mirroring reconciler.nextEntryIsOwnerArrival's search but
// returning the candidate itself rather than just a bool, since the base
// name needs its date too.
func nextEntry(r *model.Reservation, group []*model.Reservation) (*model.Reservation, bool) {
	var nearest *model.Reservation
	for _, other := range group {
		if other.RecordID == r.RecordID {
			continue
		}
		if other.CheckIn.Before(r.CheckOut) {
			continue
		}
		if nearest == nil || other.CheckIn.Before(nearest.CheckIn) {
			nearest = other
		}
	}
	return nearest, nearest != nil
}

func formatMonthDay(d model.Date) string {
	return fmt.Sprintf("%s %d", d.Month.String()[:3], d.Day)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 {
		return ""
	}
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
