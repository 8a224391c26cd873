// Package jobprojector implements C7: it keeps each active record's
// downstream job and service-line description converged with the record's
// own fields, and reports whether the downstream schedule still agrees
// with the record's Final Service Time.
//
// The package composes against fieldservice.Client and a narrow Store
// interface the same way reconciler composes against recordstore.Client —
// accept interfaces, return structs — so tests can supply fakes for both.
package jobprojector

import (
	"context"
	"time"

	"strreconcile.dev/core/fieldservice"
	"strreconcile.dev/core/logging"
	"strreconcile.dev/core/model"
)

// FieldServiceClient is the subset of fieldservice.Client the projector
// depends on.
type FieldServiceClient interface {
	CreateJob(ctx context.Context, r fieldservice.CreateJobRequest) (*fieldservice.Job, error)
	GetJob(ctx context.Context, jobID string) (*fieldservice.Job, error)
	CloneTemplateLineItems(ctx context.Context, jobID, templateID string) ([]fieldservice.LineItem, error)
	UpdateLineItemName(ctx context.Context, jobID, lineItemID, name string) error
}

// Store is the subset of the record-store gateway the projector writes
// through.
type Store interface {
	UpdateReservation(ctx context.Context, r *model.Reservation) error
}

// Config holds the projector's tunables.
type Config struct {
	Location           *time.Location
	AssignedEmployeeID string
	ArrivalWindow      time.Duration
	ServiceDuration     time.Duration

	Now   func() time.Time
	Sleep func(context.Context, time.Duration) error
}

// DefaultConfig returns spec §4.7's stated defaults: a one-hour service
// window and a zero-minute arrival window.
func DefaultConfig() Config {
	return Config{
		Location:        time.UTC,
		ServiceDuration: time.Hour,
		Now:             time.Now,
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

// Projector ensures jobs exist, stay scheduled correctly, and carry an
// up-to-date service-line description.
type Projector struct {
	fs     FieldServiceClient
	store  Store
	cfg    Config
	logger *logging.ContextLogger
}

// New builds a Projector. cfg zero-fields are filled from DefaultConfig.
func New(fs FieldServiceClient, store Store, cfg Config) *Projector {
	d := DefaultConfig()
	if cfg.Location == nil {
		cfg.Location = d.Location
	}
	if cfg.ServiceDuration == 0 {
		cfg.ServiceDuration = d.ServiceDuration
	}
	if cfg.Now == nil {
		cfg.Now = d.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = d.Sleep
	}
	return &Projector{fs: fs, store: store, cfg: cfg, logger: logging.New("jobprojector")}
}

func (p *Projector) now() time.Time { return p.cfg.Now() }
