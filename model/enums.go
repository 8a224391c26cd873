package model

// EntryType distinguishes a guest reservation from an owner/maintenance block.
type EntryType string

const (
	EntryTypeReservation EntryType = "Reservation"
	EntryTypeBlock       EntryType = "Block"
)

// ServiceType is the kind of cleaning/service work a record implies.
type ServiceType string

const (
	ServiceTypeTurnover       ServiceType = "Turnover"
	ServiceTypeReturnLaundry  ServiceType = "Return Laundry"
	ServiceTypeInspection     ServiceType = "Inspection"
	ServiceTypeNeedsReview    ServiceType = "Needs Review"
)

// Status is the reconciler's lifecycle state for a reservation record.
// Invariant: at most one record with Status != StatusOld exists per
// (UID, FeedURL) at any point in time (spec §3, §8 invariant 1).
type Status string

const (
	StatusNew      Status = "New"
	StatusModified Status = "Modified"
	StatusRemoved  Status = "Removed"
	StatusOld      Status = "Old"
)

// JobStatus mirrors the downstream field-service system's work-status enum.
type JobStatus string

const (
	JobStatusUnscheduled JobStatus = "Unscheduled"
	JobStatusScheduled   JobStatus = "Scheduled"
	JobStatusInProgress  JobStatus = "In Progress"
	JobStatusCompleted   JobStatus = "Completed"
	JobStatusCanceled    JobStatus = "Canceled"
)

// SyncStatus reports the truthful divergence between the record's desired
// service time and the downstream job's observed schedule (spec §4.7.1).
type SyncStatus string

const (
	SyncStatusSynced     SyncStatus = "Synced"
	SyncStatusWrongDate  SyncStatus = "Wrong Date"
	SyncStatusWrongTime  SyncStatus = "Wrong Time"
	SyncStatusNotCreated SyncStatus = "Not Created"
)

// OldJobIDPrefix is prepended to a superseded record's external job id so
// stray webhooks referencing it cannot resurrect a stale link (spec §3).
const OldJobIDPrefix = "old_"
