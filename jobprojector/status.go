package jobprojector

import "strreconcile.dev/core/model"

// MapJobStatus translates the downstream field-service system's raw status
// string into the reconciler's JobStatus enum. C8's webhook handler reuses
// this exact mapping (spec §4.8 "using the same status map as C7") so a
// webhook-driven update and a C7 sync pass never disagree about what a
// given downstream status means.
func MapJobStatus(raw string) model.JobStatus {
	switch raw {
	case "unscheduled", "Unscheduled":
		return model.JobStatusUnscheduled
	case "scheduled", "Scheduled":
		return model.JobStatusScheduled
	case "in_progress", "In Progress", "InProgress":
		return model.JobStatusInProgress
	case "completed", "Completed":
		return model.JobStatusCompleted
	case "canceled", "cancelled", "Canceled", "Cancelled":
		return model.JobStatusCanceled
	default:
		return model.JobStatusUnscheduled
	}
}
