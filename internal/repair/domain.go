// Package repair detects and fixes ledger rows whose transfer pairing drifted
// out of sync with the transaction they reference.
package repair

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// Kind names a class of consistency violation.
type Kind string

const (
	// KindVoidedPaymentOrphan is a voided payment with a live transfer child.
	KindVoidedPaymentOrphan Kind = "voided_payment_orphan"
	// KindTransferPairMismatch is a transfer pair whose sides disagree on voided.
	KindTransferPairMismatch Kind = "transfer_pair_mismatch"
)

// Candidate is a suspected violation. SourceID is the voided row, LinkedID the
// row that should have been voided with it.
type Candidate struct {
	Kind     Kind  `json:"kind"`
	HotelID  int64 `json:"hotel_id"`
	SourceID int64 `json:"source_id"`
	LinkedID int64 `json:"linked_id"`
}

// Options scope a repair run.
type Options struct {
	HotelID         *int64
	DryRun          bool
	ContinueOnError bool
	// Limit caps the number of candidates examined; zero means no cap.
	Limit int
	Actor int64
}

// Outcome status values.
const (
	OutcomeFixed    = "fixed"
	OutcomeWouldFix = "would_fix"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// RowState is the observable state of a ledger row before or after a fix.
type RowState struct {
	ID       int64  `json:"id"`
	Number   string `json:"number"`
	FolioID  int64  `json:"folio_id"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Total    string `json:"total"`
	Voided   bool   `json:"voided"`
}

// Outcome records what happened to one candidate.
type Outcome struct {
	Candidate
	Status string     `json:"status"`
	Before []RowState `json:"before,omitempty"`
	After  []RowState `json:"after,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Report summarises a run.
type Report struct {
	DryRun   bool      `json:"dry_run"`
	Found    int       `json:"found"`
	Fixed    int       `json:"fixed"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
}

var (
	// ErrActorRequired indicates a fixing run without an acting user.
	ErrActorRequired = fmt.Errorf("%w: repair: actor required unless dry run", shared.ErrConfiguration)
	// ErrAborted indicates the run stopped at the first failed fix.
	ErrAborted = errors.New("repair: aborted after failed fix")
)
