// Package reconciler implements C6, the heart of the system: it consumes
// a normalized event stream from csvingest/feedingest and mutates the
// record store to a convergent, history-preserving projection.
//
// The reconcile-then-converge shape (diff observed vs desired, write only
// what changed) is the general idiom several reconciler-shaped
// other_examples/ files show; the concrete per-event decision tree,
// removal-safety thresholds, and flag recomputation rules below are
// grounded directly on spec §4.6/§4.6.1/§4.6.2 since no pack repo
// implements this domain's specific convergence policy.
package reconciler

import (
	"context"
	"time"

	"strreconcile.dev/core/identity"
	"strreconcile.dev/core/logging"
	"strreconcile.dev/core/model"
)

// Store is the subset of the record-store gateway the reconciler depends
// on, kept narrow per Go's "accept interfaces" idiom so tests can supply
// an in-memory fake instead of a live recordstore.Client.
type Store interface {
	ActiveReservationsForKey(ctx context.Context, key model.Key) ([]*model.Reservation, error)
	AllActiveReservations(ctx context.Context) ([]*model.Reservation, error)
	CreateReservation(ctx context.Context, r *model.Reservation, idempotencyKey string) (*model.Reservation, error)
	UpdateReservation(ctx context.Context, r *model.Reservation) error
}

// Event is one normalized booking/block observation handed in by C4 or C5.
type Event struct {
	UID         string
	FeedURL     string
	PropertyID  string
	CheckIn     model.Date
	CheckOut    model.Date
	EntryType   model.EntryType
	ServiceType model.ServiceType
	SupplierInfo string

	// SameDayOverride carries an iTrip row's explicit "Same Day?" column,
	// which wins over the derived flag (spec §4.6.2 "iTrip override").
	SameDayOverride *bool

	// RemovalRequested marks an Evolve tab-2 cancelled owner block for
	// removal rather than create/modify (spec §4.4).
	RemovalRequested bool
}

// Config holds the reconciler's tunables, all overridable per spec's
// "(configurable)" notes in §4.6.1, plus the injectable clock/sleep used
// so tests can run the grace-interval race guard without a real sleep.
type Config struct {
	GraceInterval         time.Duration
	MissingCountThreshold int
	MissingSinceThreshold time.Duration
	Location              *time.Location
	RunID                 string

	Now   func() time.Time
	Sleep func(context.Context, time.Duration) error
}

// DefaultConfig returns spec §4.6's stated defaults.
func DefaultConfig() Config {
	return Config{
		GraceInterval:         100 * time.Millisecond,
		MissingCountThreshold: 3,
		MissingSinceThreshold: 12 * time.Hour,
		Location:              time.UTC,
		Now:                   time.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Reconciler applies the per-event decision tree, removal-safety sweep,
// and flag recomputation against a Store.
type Reconciler struct {
	store  Store
	cfg    Config
	logger *logging.ContextLogger
}

// New builds a Reconciler. cfg zero-fields are filled from DefaultConfig.
func New(store Store, cfg Config) *Reconciler {
	d := DefaultConfig()
	if cfg.GraceInterval == 0 {
		cfg.GraceInterval = d.GraceInterval
	}
	if cfg.MissingCountThreshold == 0 {
		cfg.MissingCountThreshold = d.MissingCountThreshold
	}
	if cfg.MissingSinceThreshold == 0 {
		cfg.MissingSinceThreshold = d.MissingSinceThreshold
	}
	if cfg.Location == nil {
		cfg.Location = d.Location
	}
	if cfg.Now == nil {
		cfg.Now = d.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = d.Sleep
	}
	return &Reconciler{store: store, cfg: cfg, logger: logging.New("reconciler")}
}

func (rc *Reconciler) now() time.Time { return rc.cfg.Now() }

func demotedJobID(id string) string {
	if id == "" {
		return ""
	}
	return model.OldJobIDPrefix + id
}

// eventChangeSignature computes the signature ev would produce against
// existing. SameDayTurnover/OverlappingDates are derived by
// RecomputeFlags, never by an event, so the comparison carries existing's
// current values forward rather than defaulting them to false — otherwise
// any record RecomputeFlags has ever flipped a flag on would permanently
// mismatch its own unchanged event on every later run.
func eventChangeSignature(existing *model.Reservation, ev Event) string {
	fake := &model.Reservation{
		CheckIn:          ev.CheckIn,
		CheckOut:         ev.CheckOut,
		PropertyID:       ev.PropertyID,
		EntryType:        ev.EntryType,
		ServiceType:      ev.ServiceType,
		SupplierInfo:     ev.SupplierInfo,
		SameDayTurnover:  existing.SameDayTurnover,
		OverlappingDates: existing.OverlappingDates,
	}
	return identity.ChangeSignature(fake)
}
