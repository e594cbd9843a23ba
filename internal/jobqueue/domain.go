package jobqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-folio/internal/nightaudit"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// Type tags a job and selects its payload shape.
type Type string

const (
	TypeNightAudit       Type = "NIGHT_AUDIT"
	TypeLedgerRepair     Type = "LEDGER_REPAIR"
	TypeFolioRecalculate Type = "FOLIO_RECALCULATE"
)

// Status enumerates job lifecycle values.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const (
	nightAuditCeiling = 10
	defaultCeiling    = 6
)

// RetryCeiling is the number of failed attempts after which a job is parked.
func RetryCeiling(t Type) int {
	if t == TypeNightAudit {
		return nightAuditCeiling
	}
	return defaultCeiling
}

// Job is a durable unit of background work.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        Type            `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Retryable reports whether a claim may pick the job up again.
func (j Job) Retryable() bool {
	switch j.Status {
	case StatusPending:
		return true
	case StatusFailed:
		return j.Attempts < RetryCeiling(j.Type)
	}
	return false
}

// Parked reports a failed job that will not be retried.
func (j Job) Parked() bool {
	return j.Status == StatusFailed && j.Attempts >= RetryCeiling(j.Type)
}

// NightAuditPayload is the NIGHT_AUDIT payload.
type NightAuditPayload = nightaudit.Payload

// LedgerRepairPayload is the LEDGER_REPAIR payload.
type LedgerRepairPayload struct {
	HotelID *int64 `json:"hotelId,omitempty"`
	DryRun  bool   `json:"dryRun"`
	Limit   int    `json:"limit,omitempty"`
	ActorID int64  `json:"actorId"`
}

// FolioRecalculatePayload is the FOLIO_RECALCULATE payload.
type FolioRecalculatePayload struct {
	FolioIDs []int64 `json:"folioIds"`
}

var (
	// ErrNoJob indicates nothing is eligible for claim.
	ErrNoJob = errors.New("jobqueue: no eligible job")
	// ErrJobNotFound indicates missing job.
	ErrJobNotFound = fmt.Errorf("jobqueue: job %w", shared.ErrNotFound)
	// ErrUnknownType indicates a job type without a payload shape.
	ErrUnknownType = fmt.Errorf("%w: jobqueue: unknown job type", shared.ErrConfiguration)
)

// NewJob builds a pending job with the payload encoded for its type.
func NewJob(t Type, payload any, now time.Time) (Job, error) {
	switch t {
	case TypeNightAudit, TypeLedgerRepair, TypeFolioRecalculate:
	default:
		return Job{}, fmt.Errorf("%w %q", ErrUnknownType, t)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("jobqueue: encode payload: %w", err)
	}
	return Job{
		ID:        uuid.New(),
		Type:      t,
		Payload:   data,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Decode unmarshals the job payload into the shape registered for its type.
// Malformed payloads are configuration errors and are never retried.
func Decode[T any](job Job) (T, error) {
	var out T
	if len(job.Payload) == 0 {
		return out, fmt.Errorf("%w: jobqueue: %s job %s has no payload", shared.ErrConfiguration, job.Type, job.ID)
	}
	if err := json.Unmarshal(job.Payload, &out); err != nil {
		return out, fmt.Errorf("%w: jobqueue: decode %s payload: %w", shared.ErrConfiguration, job.Type, err)
	}
	return out, nil
}
