// Package model holds the shared data types that flow between every component:
// properties, reservation records, and the small enums that constrain their
// fields. Nothing in this package talks to the record store or any other
// external system — it is pure data plus a handful of pure helpers.
package model

// Property is a cleanable unit. It is immutable from the reconciler's point of
// view: nothing in this module writes to a Property, only reads it through the
// record-store gateway's list_linked operation.
type Property struct {
	ID   string
	Name string

	// OwnerFullName is compared case-insensitively against guest names to
	// detect Evolve owner blocks (spec §4.4).
	OwnerFullName string

	// External-system ids used when creating a downstream job (C7).
	CustomerID string
	AddressID  string

	// JobTemplateIDs maps a ServiceType to the downstream job template id to
	// clone line items from, and JobTypeIDs maps it to the job-type id sent
	// on job creation.
	JobTemplateIDs map[ServiceType]string
	JobTypeIDs     map[ServiceType]string

	// TimeZone is the IANA zone name this property's dates/times are
	// interpreted in. Falls back to the run's configured business timezone
	// when empty.
	TimeZone string

	// ListingNumber is the Evolve listing number extracted from supplier
	// property names, used for Evolve's non-fuzzy match-by-listing rule.
	ListingNumber string

	// FeedURL is this property's iCalendar subscription URL, the source
	// C5 polls and the value reservations sourced from it carry in
	// FeedURL (spec §4.5).
	FeedURL string
}
