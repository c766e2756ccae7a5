// Package models defines the domain entities shared across labtrace's
// services: patients, reports, lab results, analytes, and the mapping
// review workflow. These types mirror the hand-authored ent schema
// descriptions in ent/schema but are populated by pkg/store's pgx-based
// repositories rather than generated ent code.
package models

import "time"

// User is an authenticated operator of the system. Authentication itself
// (OAuth) is an external collaborator; this repo only consumes the
// resulting identity.
type User struct {
	ID        string
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
}

// Patient is the subject of one or more lab reports.
type Patient struct {
	ID          string
	OwnerUserID string // the uploading user; drives row-level security on patients/reports/lab_results
	ExternalID  string // identifier as it appears on source documents
	Name        string
	DOB         *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReportStatus tracks a report through the ingestion pipeline.
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "pending"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusMapped     ReportStatus = "mapped" // extraction persisted; individual result rows may still be queued for analyte review
	ReportStatusReview     ReportStatus = "review"
	ReportStatusFailed     ReportStatus = "failed"
)

// Report is one uploaded lab report document.
type Report struct {
	ID          string
	PatientID   string
	Status      ReportStatus
	Checksum    string // sha256 of the raw uploaded bytes, used for dedup
	StoragePath string // content-addressed path, see pkg/storage
	SourceName  string // original filename
	CollectedAt *time.Time
	RawOutput   string // raw OCR/structured-extraction output, persisted for audit and reprocessing
	FailReason  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LabResult is a single analyte measurement extracted from a report.
type LabResult struct {
	ID         string
	ReportID   string
	PatientID  string
	AnalyteID  *string // nil until mapped
	RawName    string  // analyte name as it appeared on the source document
	Value      float64
	Unit       string
	RefLow     *float64
	RefHigh    *float64
	Flag       string // status enum value when extracted, else the printed flag (e.g. "H"), else "unknown"
	CreatedAt  time.Time
}

// Analyte is a canonical, de-duplicated lab measurement type (e.g. "Hemoglobin A1c").
type Analyte struct {
	ID        string
	Name      string
	Category  string
	CreatedAt time.Time
}

// AnalyteAlias is a known spelling/synonym for an Analyte, used by the
// exact and fuzzy mapping tiers.
type AnalyteAlias struct {
	ID         string
	AnalyteID  string
	Alias      string
	Normalized string // lower-cased, whitespace-collapsed form used for matching
	CreatedAt  time.Time
}

// MatchTier records which tier of the mapping pipeline resolved a result.
type MatchTier string

const (
	MatchTierExact MatchTier = "exact"
	MatchTierFuzzy MatchTier = "fuzzy"
	MatchTierLLM   MatchTier = "llm"
)

// ReviewStatus is the lifecycle of a PendingAnalyte review item.
type ReviewStatus string

const (
	ReviewStatusOpen     ReviewStatus = "open"
	ReviewStatusAccepted ReviewStatus = "accepted"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// PendingAnalyte is a raw analyte name the mapper could not confidently
// resolve; it queues for admin review.
type PendingAnalyte struct {
	ID          string
	RawName     string
	Normalized  string
	OccurrenceN int
	Status      ReviewStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MatchReview is an admin decision on a PendingAnalyte: either accept into
// an existing or new Analyte (creating an alias), or reject.
type MatchReview struct {
	ID               string
	PendingAnalyteID string
	ReviewerID       string
	Decision         ReviewStatus
	TargetAnalyteID  *string
	CreatedAt        time.Time
}

// JobStatus is the lifecycle of a background ingestion job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// AuditEvent is an append-only record of a system action taken on behalf
// of a user, independent of admin-specific AdminAction records.
type AuditEvent struct {
	ID        string
	UserID    string
	Action    string
	Detail    string
	CreatedAt time.Time
}

// AdminAction is an append-only record of a privileged admin mutation,
// always written in the same transaction as the mutation it describes.
type AdminAction struct {
	ID        string
	AdminID   string
	Action    string
	TargetID  string
	Detail    string
	CreatedAt time.Time
}
