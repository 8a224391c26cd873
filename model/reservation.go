package model

import "time"

// Reservation is the central entity: a history-preserving projection of one
// booking/block as observed from an upstream source, reconciled against the
// record store, and projected into a downstream job.
//
// Records are never deleted. A superseded predecessor is demoted to
// StatusOld and retained; its JobID is rewritten with OldJobIDPrefix so a
// stray webhook cannot resurrect it (spec §3).
type Reservation struct {
	// RecordID is the record store's own id for this row, assigned on
	// create. Empty for a record that has not yet been persisted.
	RecordID string

	UID     string
	FeedURL string

	PropertyID string

	CheckIn  Date
	CheckOut Date

	EntryType   EntryType
	ServiceType ServiceType
	Status      Status

	SameDayTurnover  bool
	OverlappingDates bool
	OwnerArriving    bool
	LongTermGuest    bool

	// SupplierInfo is an opaque upstream remark (e.g. a contractor note).
	SupplierInfo string

	// Removal-safety bookkeeping (spec §4.6.1).
	MissingCount int
	MissingSince time.Time
	LastSeen     time.Time

	// Job-link fields. JobID is prefixed with OldJobIDPrefix once the
	// record carrying it is demoted to StatusOld.
	JobID         string
	AppointmentID string
	JobStatus     JobStatus

	ScheduledServiceTime time.Time
	FinalServiceTime     time.Time

	CustomInstructions     string
	ServiceLineDescription string

	SyncStatus          SyncStatus
	SyncDetails         string
	ScheduleSyncDetails string

	LastUpdated time.Time

	// RunID identifies the ingest run that last touched this in-memory
	// value. Never persisted; used only for log correlation (SPEC_FULL §3).
	RunID string
}

// Key identifies a record's external identity: (UID, FeedURL) together, per
// spec §3 — two records sharing a UID but differing feed URLs are distinct.
type Key struct {
	UID     string
	FeedURL string
}

// ExternalKey returns r's external identity.
func (r *Reservation) ExternalKey() Key {
	return Key{UID: r.UID, FeedURL: r.FeedURL}
}

// IsActive reports whether r currently occupies the "at most one active
// record" slot for its external key (spec §8 invariant 1).
func (r *Reservation) IsActive() bool {
	return r.Status != StatusOld
}

// Clone returns a deep-enough copy of r. Callers of the reconciler's
// modification clone (spec §4.6 step 4) start from this and then overwrite
// the whitelisted fields, so that nothing from the predecessor leaks
// through by accident except what the policy explicitly keeps.
func (r *Reservation) Clone() *Reservation {
	c := *r
	c.RecordID = ""
	return &c
}
