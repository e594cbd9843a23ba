package jobs

import (
	"encoding/json"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-folio/internal/nightaudit"
)

const (
	// QueueDefault is the default queue name for background tasks.
	QueueDefault = "default"
	// TaskDailySummaryReport delivers a finished night audit summary.
	TaskDailySummaryReport = "report:daily-summary"
	// TaskLedgerIntegrityScan counts ledger consistency violations.
	TaskLedgerIntegrityScan = "ledger:integrity-scan"
	// TaskNightAuditSchedule enqueues the nightly NIGHT_AUDIT jobs.
	TaskNightAuditSchedule = "nightaudit:schedule"
)

// DailySummaryPayload carries the summary to report on.
type DailySummaryPayload struct {
	Fact       nightaudit.DailySummaryFact `json:"fact"`
	Recipients []string                    `json:"recipients,omitempty"`
}

// IntegrityScanPayload scopes the integrity scan. A nil hotel scans every hotel.
type IntegrityScanPayload struct {
	HotelID *int64 `json:"hotel_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// NewDailySummaryTask constructs the report hand-off task.
func NewDailySummaryTask(payload DailySummaryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailySummaryReport, data), nil
}

// NewIntegrityScanTask constructs the scheduled integrity scan.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, data), nil
}

// NewNightAuditScheduleTask constructs the nightly scheduling task.
func NewNightAuditScheduleTask() *asynq.Task {
	return asynq.NewTask(TaskNightAuditSchedule, []byte("{}"))
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
