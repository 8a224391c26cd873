package jobprojector

import (
	"context"
	"fmt"
	"time"

	"strreconcile.dev/core/fieldservice"
	"strreconcile.dev/core/model"
)

// EnsureJob implements spec §4.7's top-level rule: for an active record
// with a resolved Final Service Time and property, make sure a downstream
// job exists, its schedule is verified, and its first line item matches
// the record's composed description. property must be non-nil and
// resolved by the caller (C9 orchestrator); group is every other active
// entry at the same property.
func (p *Projector) EnsureJob(ctx context.Context, r *model.Reservation, property *model.Property, group []*model.Reservation) error {
	if r.FinalServiceTime.IsZero() || property == nil {
		return nil
	}

	description := BuildServiceLineDescription(r, group)

	if r.JobID == "" {
		return p.createJob(ctx, r, property, description)
	}

	updated, err := p.VerifySync(ctx, r)
	if err != nil {
		return err
	}
	if updated == nil {
		updated = r.Clone()
		updated.RecordID = r.RecordID
	}

	if description != r.ServiceLineDescription {
		if err := p.updateLineItemDescription(ctx, updated, description); err != nil {
			return err
		}
	}

	return p.store.UpdateReservation(ctx, updated)
}

func (p *Projector) createJob(ctx context.Context, r *model.Reservation, property *model.Property, description string) error {
	templateID := property.JobTemplateIDs[r.ServiceType]
	typeID := property.JobTypeIDs[r.ServiceType]

	job, err := p.fs.CreateJob(ctx, fieldservice.CreateJobRequest{
		PropertyID:           property.ID,
		CustomerID:           property.CustomerID,
		AddressID:            property.AddressID,
		JobTemplateID:        templateID,
		JobTypeID:            typeID,
		ServiceLine:          description,
		RequestedTime:        r.FinalServiceTime,
		ScheduledEnd:         r.FinalServiceTime.Add(p.cfg.ServiceDuration),
		ArrivalWindowMinutes: int(p.cfg.ArrivalWindow.Minutes()),
		AssignedEmployeeID:   p.cfg.AssignedEmployeeID,
		IdempotencyKey:       r.RecordID,
	})
	if err != nil {
		return fmt.Errorf("jobprojector: create job for %s: %w", r.UID, err)
	}

	items, err := p.fs.CloneTemplateLineItems(ctx, job.ID, templateID)
	if err != nil {
		return fmt.Errorf("jobprojector: clone line items for job %s: %w", job.ID, err)
	}
	if len(items) > 0 {
		if err := p.setLineItemName(ctx, job.ID, items[0].ID, description); err != nil {
			return fmt.Errorf("jobprojector: name first line item for job %s: %w", job.ID, err)
		}
	}

	appointmentID := job.AppointmentID
	for attempt := 0; appointmentID == "" && attempt < 2; attempt++ {
		if err := p.cfg.Sleep(ctx, 500*time.Millisecond); err != nil {
			return err
		}
		refetched, err := p.fs.GetJob(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("jobprojector: refetch job %s for appointment id: %w", job.ID, err)
		}
		appointmentID = refetched.AppointmentID
		job = refetched
	}

	updated := r.Clone()
	updated.RecordID = r.RecordID
	updated.JobID = job.ID
	updated.AppointmentID = appointmentID
	updated.JobStatus = MapJobStatus(job.Status)
	updated.ServiceLineDescription = description
	updated.ScheduledServiceTime = job.ScheduledTime
	updated.SyncStatus = model.SyncStatusSynced
	if job.ScheduledTime.IsZero() {
		updated.SyncStatus = model.SyncStatusNotCreated
	}

	return p.store.UpdateReservation(ctx, updated)
}

// setLineItemName applies spec §4.7's "on name too long, retry once with a
// truncated name" rule. There is no dedicated error taxonomy for this on
// the field-service client, so any failure from the first attempt is
// treated as the retry trigger; if the truncated name is identical to the
// original (nothing left to shrink), the original error is returned.
func (p *Projector) setLineItemName(ctx context.Context, jobID, lineItemID, name string) error {
	err := p.fs.UpdateLineItemName(ctx, jobID, lineItemID, name)
	if err == nil {
		return nil
	}
	truncated := truncateRunes(name, maxDescriptionLength-len([]rune(ellipsis))) + ellipsis
	if truncated == name {
		return err
	}
	return p.fs.UpdateLineItemName(ctx, jobID, lineItemID, truncated)
}

// updateLineItemDescription implements spec §4.7.2's auto-update rule: the
// downstream line-item name is "{manual notes} | {auto description}"; only
// the segment after the pipe is rewritten, and the update is skipped
// entirely when the composed value already matches.
func (p *Projector) updateLineItemDescription(ctx context.Context, updated *model.Reservation, description string) error {
	job, err := p.fs.GetJob(ctx, updated.JobID)
	if err != nil {
		return fmt.Errorf("jobprojector: fetch job %s for line item update: %w", updated.JobID, err)
	}
	if len(job.LineItems) == 0 {
		updated.ServiceLineDescription = description
		return nil
	}

	item := job.LineItems[0]
	effective := composeLineItemName(item.Name, description)
	effective = truncateRunes(effective, effectiveLineItemLimit)

	if effective == item.Name {
		updated.ServiceLineDescription = description
		return nil
	}

	if err := p.fs.UpdateLineItemName(ctx, updated.JobID, item.ID, effective); err != nil {
		return fmt.Errorf("jobprojector: auto-update line item %s: %w", item.ID, err)
	}
	updated.ServiceLineDescription = description
	return nil
}

// effectiveLineItemLimit is spec §4.7.2's 200-character effective cap on
// the combined manual-notes-plus-auto-description value.
const effectiveLineItemLimit = 200

func composeLineItemName(current, autoDescription string) string {
	if idx := indexOfPipe(current); idx >= 0 {
		manual := current[:idx]
		return trimTrailingSpace(manual) + " | " + autoDescription
	}
	return current + " | " + autoDescription
}

func indexOfPipe(s string) int {
	for i, r := range s {
		if r == '|' {
			return i
		}
	}
	return -1
}

func trimTrailingSpace(s string) string {
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}
