// Package feedingest implements C5: bounded-concurrency fetch of
// per-property calendar feeds, iCalendar event extraction, within-run
// deduplication by logical fingerprint, and removal-candidate tracking.
package feedingest

import (
	"sync"

	"strreconcile.dev/core/identity"
)

// SessionTracker is the shared dedup/removal-candidate state for one
// ingest run (spec §4.5: "maintain a session tracker set keyed by the
// fingerprint"). It is safe for concurrent use so the bounded fetch pool
// can share one tracker across every in-flight feed fetch.
type SessionTracker struct {
	mu sync.Mutex

	// seenFingerprints records the first UID to claim each fingerprint
	// this run, so later events with the same fingerprint (but a
	// different dynamically-generated UID) are dropped before any
	// record-store interaction.
	seenFingerprints map[identity.Fingerprint]string

	// observedByFeed records, per feed URL, every UID actually seen this
	// run — the complement of this set against the store's existing
	// records for that feed is the removal-candidate set (spec §4.5).
	observedByFeed map[string]map[string]struct{}
}

// NewSessionTracker returns an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{
		seenFingerprints: make(map[identity.Fingerprint]string),
		observedByFeed:   make(map[string]map[string]struct{}),
	}
}

// ClaimFingerprint registers fp as claimed by uid if no prior event this
// run claimed it. It returns true the first time a fingerprint is seen,
// false for every subsequent duplicate (which the caller must count as
// Duplicate_Ignored and drop, per spec §4.5 — this check must happen
// before any lookup by the current UID).
func (t *SessionTracker) ClaimFingerprint(fp identity.Fingerprint, uid string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.seenFingerprints[fp]; exists {
		return false
	}
	t.seenFingerprints[fp] = uid
	return true
}

// ObserveUID records that uid was seen on feedURL this run.
func (t *SessionTracker) ObserveUID(feedURL, uid string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.observedByFeed[feedURL]
	if !ok {
		set = make(map[string]struct{})
		t.observedByFeed[feedURL] = set
	}
	set[uid] = struct{}{}
}

// Observed reports whether uid was seen on feedURL this run.
func (t *SessionTracker) Observed(feedURL, uid string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.observedByFeed[feedURL]
	if !ok {
		return false
	}
	_, ok = set[uid]
	return ok
}

// RescueByFingerprint reports whether fp was claimed by some UID this run
// (spec §4.6's cross-UID fingerprint rescue: a removal candidate whose
// UID changed but whose logical booking is still present should not be
// removed).
func (t *SessionTracker) RescueByFingerprint(fp identity.Fingerprint) (uid string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	uid, ok = t.seenFingerprints[fp]
	return uid, ok
}
