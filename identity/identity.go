// Package identity implements C3: UID construction for CSV-sourced events,
// the logical-identity fingerprint used to match records across a changing
// UID, and the change-signature content hash that governs "no writes if
// nothing changed" across the reconciler and job projector.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"strreconcile.dev/core/model"
)

var slugCollapse = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and collapses runs of non-alphanumerics into single
// underscores, trimming any leading/trailing underscore (spec §4.3).
func Slug(s string) string {
	lower := strings.ToLower(s)
	collapsed := slugCollapse.ReplaceAllString(lower, "_")
	return strings.Trim(collapsed, "_")
}

// BuildCSVUID constructs the deterministic UID for a CSV-sourced event:
// source_slug(property)_checkin_checkout_slug(guestLastNameOrBlock)
// (spec §4.3).
func BuildCSVUID(source, propertyName string, checkIn, checkOut model.Date, guestLastNameOrBlock string) string {
	return fmt.Sprintf(
		"%s_%s_%s_%s_%s",
		strings.ToLower(source),
		Slug(propertyName),
		checkIn.String(),
		checkOut.String(),
		Slug(guestLastNameOrBlock),
	)
}

// Fingerprint is the logical identity of a booking, stable across a change
// in UID: (property, check-in, check-out, entry type) (spec §4.3).
type Fingerprint struct {
	PropertyID string
	CheckIn    model.Date
	CheckOut   model.Date
	EntryType  model.EntryType
}

// FingerprintOf derives r's fingerprint. SPEC_FULL §3 names this the
// "FingerprintKey" derived accessor: it is never stored, only computed on
// read wherever fingerprint-based matching is needed (session tracker,
// removal rescue).
func FingerprintOf(r *model.Reservation) Fingerprint {
	return Fingerprint{
		PropertyID: r.PropertyID,
		CheckIn:    r.CheckIn,
		CheckOut:   r.CheckOut,
		EntryType:  r.EntryType,
	}
}

// String renders a Fingerprint as a stable map key.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", f.PropertyID, f.CheckIn, f.CheckOut, f.EntryType)
}

// ChangeSignature hashes the subset of r's fields that define "the same
// booking, unchanged" (spec §4.3): dates, property, entry type, service
// type, same-day and overlapping flags, supplier info, and — for blocks —
// the entry type again standing in for block-type. Job-system fields
// (JobID, JobStatus, sync fields, etc.) are excluded by construction: they
// are never read here.
func ChangeSignature(r *model.Reservation) string {
	h := sha256.New()
	fmt.Fprintf(h, "checkin=%s\n", r.CheckIn)
	fmt.Fprintf(h, "checkout=%s\n", r.CheckOut)
	fmt.Fprintf(h, "property=%s\n", r.PropertyID)
	fmt.Fprintf(h, "entry_type=%s\n", r.EntryType)
	fmt.Fprintf(h, "service_type=%s\n", r.ServiceType)
	fmt.Fprintf(h, "same_day=%t\n", r.SameDayTurnover)
	fmt.Fprintf(h, "overlapping=%t\n", r.OverlappingDates)
	fmt.Fprintf(h, "supplier_info=%s\n", r.SupplierInfo)
	if r.EntryType == model.EntryTypeBlock {
		fmt.Fprintf(h, "block=true\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Equivalent reports whether a and b are "the same booking, unchanged" per
// their change signatures (spec §4.3).
func Equivalent(a, b *model.Reservation) bool {
	return ChangeSignature(a) == ChangeSignature(b)
}
