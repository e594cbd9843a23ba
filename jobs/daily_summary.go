package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/odyssey-erp/odyssey-folio/internal/jobs"
	"github.com/odyssey-erp/odyssey-folio/internal/nightaudit"
)

// Mailer delivers rendered reports.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// LogMailer writes reports to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(_ context.Context, to []string, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("daily summary report", slog.Any("to", to), slog.String("subject", subject), slog.String("body", body))
	return nil
}

// DailySummaryJob renders and delivers night audit summaries.
type DailySummaryJob struct {
	Mailer     Mailer
	Recipients []string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle processes TaskDailySummaryReport tasks.
func (j *DailySummaryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Mailer == nil {
		return errors.New("daily summary: handler not configured")
	}
	var payload DailySummaryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("daily summary: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskDailySummaryReport)
	defer func() { err = tracker.End(err) }()

	to := payload.Recipients
	if len(to) == 0 {
		to = j.Recipients
	}
	subject, body := RenderDailySummary(payload.Fact)
	if err := j.Mailer.Send(ctx, to, subject, body); err != nil {
		return fmt.Errorf("daily summary: send: %w", err)
	}
	return nil
}

// RenderDailySummary formats the summary as a plain text report.
func RenderDailySummary(fact nightaudit.DailySummaryFact) (string, string) {
	p := message.NewPrinter(language.English)
	day := fact.AuditDate.Format("2006-01-02")
	subject := p.Sprintf("Night audit %s, hotel %d", day, fact.HotelID)

	var b strings.Builder
	line := func(label string, value any) {
		b.WriteString(p.Sprintf("%-24s %v\n", label, value))
	}
	money := func(label string, amount decimal.Decimal) {
		b.WriteString(p.Sprintf("%-24s %.2f\n", label, amount.InexactFloat64()))
	}
	line("Audit date", day)
	money("Room revenue", fact.RoomRevenue)
	money("F&B revenue", fact.FoodBeverageRevenue)
	money("Other revenue", fact.OtherRevenue)
	money("Total revenue", fact.TotalRevenue)
	money("Taxes", fact.Taxes)
	money("Service charges", fact.ServiceCharges)
	money("Discounts", fact.Discounts)
	money("Payments received", fact.PaymentsReceived)
	money("Outstanding", fact.OutstandingReceivables)
	line("Rooms occupied", p.Sprintf("%d / %d", fact.OccupiedRooms, fact.AvailableRooms))
	b.WriteString(p.Sprintf("%-24s %.2f%%\n", "Occupancy", fact.OccupancyRate.InexactFloat64()))
	money("ADR", fact.ADR)
	money("RevPAR", fact.RevPAR)
	line("Check-ins", fact.CheckIns)
	line("Check-outs", fact.CheckOuts)
	line("No-shows", fact.NoShows)
	line("Cancellations", fact.Cancellations)
	return subject, b.String()
}
