package csvingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"strreconcile.dev/core/identity"
	"strreconcile.dev/core/model"
)

// Event is one normalized row, ready for the reconciler (spec §4.4
// "Outputs: events to C6").
type Event struct {
	UID          string
	Source       string
	PropertyID   string
	CheckIn      model.Date
	CheckOut     model.Date
	EntryType    model.EntryType
	ServiceType  model.ServiceType
	SupplierInfo string

	// RemovalRequested is set for an Evolve tab-2 row whose status is
	// "cancelled": it marks an existing matching block for removal rather
	// than describing a new/modified one (spec §4.4).
	RemovalRequested bool
}

// Result accumulates per-file statistics alongside the events produced,
// mirroring the feed-ingest stats shape (C5) so the orchestrator can report
// both ingest paths uniformly (SPEC_FULL C4).
type Result struct {
	Supplier          Supplier
	RowsAttempted     int
	Events            []Event
	OutOfWindow       int
	UnmatchedProperty int
	Malformed         int
}

var maintenanceRe = regexp.MustCompile(`(?i)maintenance`)
var listingNumberRe = regexp.MustCompile(`#?(\d{3,})`)

// Window reports whether d falls within [today-6mo, today+3mo] (spec
// §4.4).
func Window(d model.Date, today model.Date) bool {
	lower := today.Time(time.UTC).AddDate(0, -6, 0)
	upper := today.Time(time.UTC).AddDate(0, 3, 0)
	t := d.Time(time.UTC)
	return !t.Before(lower) && !t.After(upper)
}

// Parse reads a CSV file from r, named filename for supplier detection,
// resolving properties against properties and dropping rows outside the
// ingest window anchored at today.
func Parse(r io.Reader, filename string, properties []*model.Property, today model.Date) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csvingest: read csv: %w", err)
	}
	if len(rows) == 0 {
		return &Result{}, nil
	}

	header := rows[0]
	supplier := DetectSupplier(filename, header)
	cm := columnMaps[supplier]

	idx := headerIndex(header)
	byName := indexPropertiesByName(properties)
	byListing := indexPropertiesByListing(properties)

	result := &Result{Supplier: supplier}

	for _, row := range rows[1:] {
		result.RowsAttempted++

		propertyName := field(row, idx, cm.PropertyName)
		checkInRaw := field(row, idx, cm.CheckIn)
		checkOutRaw := field(row, idx, cm.CheckOut)
		guest := field(row, idx, cm.Guest)
		status := field(row, idx, cm.Status)
		supplierInfo := field(row, idx, cm.SupplierInfo)

		checkIn, errIn := model.ParseDate(checkInRaw, cm.DateLayout)
		checkOut, errOut := model.ParseDate(checkOutRaw, cm.DateLayout)
		if errIn != nil || errOut != nil {
			result.Malformed++
			continue
		}

		if !Window(checkIn, today) {
			result.OutOfWindow++
			continue
		}

		var property *model.Property
		switch supplier {
		case SupplierITrip:
			property = byName[strings.ToLower(strings.TrimSpace(propertyName))]
		default:
			listing := extractListingNumber(propertyName)
			if listing != "" {
				property = byListing[listing]
			}
		}
		if property == nil {
			result.UnmatchedProperty++
			continue
		}

		entryType, serviceType, removal := classifyRow(supplier, guest, supplierInfo, status, property)

		uid := identity.BuildCSVUID(supplier.String(), propertyName, checkIn, checkOut, guestOrBlock(entryType, guest))

		result.Events = append(result.Events, Event{
			UID:              uid,
			Source:           supplier.String(),
			PropertyID:       property.ID,
			CheckIn:          checkIn,
			CheckOut:         checkOut,
			EntryType:        entryType,
			ServiceType:      serviceType,
			SupplierInfo:     supplierInfo,
			RemovalRequested: removal,
		})
	}

	return result, nil
}

func classifyRow(supplier Supplier, guest, supplierInfo, status string, property *model.Property) (model.EntryType, model.ServiceType, bool) {
	if maintenanceRe.MatchString(guest) || maintenanceRe.MatchString(supplierInfo) {
		return model.EntryTypeBlock, model.ServiceTypeNeedsReview, false
	}

	if supplier == SupplierEvolveTab2 {
		isOwnerBlock := strings.EqualFold(strings.TrimSpace(guest), strings.TrimSpace(property.OwnerFullName))
		lowerStatus := strings.ToLower(strings.TrimSpace(status))
		if isOwnerBlock && lowerStatus == "booked" {
			return model.EntryTypeBlock, model.ServiceTypeTurnover, false
		}
		if isOwnerBlock && lowerStatus == "cancelled" {
			return model.EntryTypeBlock, model.ServiceTypeTurnover, true
		}
	}

	return model.EntryTypeReservation, model.ServiceTypeTurnover, false
}

func guestOrBlock(entryType model.EntryType, guest string) string {
	if entryType == model.EntryTypeBlock {
		return "block"
	}
	if fields := strings.Fields(guest); len(fields) > 0 {
		return fields[len(fields)-1]
	}
	return guest
}

func extractListingNumber(propertyName string) string {
	m := listingNumberRe.FindStringSubmatch(propertyName)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func indexPropertiesByName(properties []*model.Property) map[string]*model.Property {
	out := make(map[string]*model.Property, len(properties))
	for _, p := range properties {
		out[strings.ToLower(strings.TrimSpace(p.Name))] = p
	}
	return out
}

func indexPropertiesByListing(properties []*model.Property) map[string]*model.Property {
	out := make(map[string]*model.Property, len(properties))
	for _, p := range properties {
		if p.ListingNumber != "" {
			out[p.ListingNumber] = p
		}
	}
	return out
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return idx
}

func field(row []string, idx map[string]int, column string) string {
	i, ok := idx[strings.ToLower(strings.TrimSpace(column))]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
