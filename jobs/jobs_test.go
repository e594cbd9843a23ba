package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-folio/internal/jobqueue"
	jobmetrics "github.com/odyssey-erp/odyssey-folio/internal/jobs"
	"github.com/odyssey-erp/odyssey-folio/internal/nightaudit"
	"github.com/odyssey-erp/odyssey-folio/internal/repair"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	ids   []string
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	for _, opt := range opts {
		if opt.Type() == asynq.TaskIDOpt {
			r.ids = append(r.ids, opt.Value().(string))
		}
	}
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func sampleFact() nightaudit.DailySummaryFact {
	return nightaudit.DailySummaryFact{
		HotelID:                3,
		AuditDate:              time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		RoomRevenue:            decimal.RequireFromString("1234.5"),
		TotalRevenue:           decimal.RequireFromString("1500"),
		OccupancyRate:          decimal.RequireFromString("62.5"),
		OccupiedRooms:          25,
		AvailableRooms:         40,
		OutstandingReceivables: decimal.RequireFromString("980.25"),
	}
}

func TestReportClientEnqueuesDailySummary(t *testing.T) {
	enq := &recordingEnqueuer{}
	client := NewReportClient(enq, []string{"gm@hotel.test"})

	require.NoError(t, client.SendDailySummaryEmail(context.Background(), sampleFact()))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskDailySummaryReport, enq.tasks[0].Type())
	require.Equal(t, []string{"daily-summary:2026-03-10:3"}, enq.ids)

	var payload DailySummaryPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, int64(3), payload.Fact.HotelID)
	require.Equal(t, []string{"gm@hotel.test"}, payload.Recipients)
}

func TestReportClientTreatsDuplicateAsDelivered(t *testing.T) {
	client := NewReportClient(&recordingEnqueuer{err: asynq.ErrTaskIDConflict}, nil)
	require.NoError(t, client.SendDailySummaryEmail(context.Background(), sampleFact()))

	failing := NewReportClient(&recordingEnqueuer{err: errors.New("redis down")}, nil)
	require.Error(t, failing.SendDailySummaryEmail(context.Background(), sampleFact()))
}

type recordingMailer struct {
	to      []string
	subject string
	body    string
}

func (m *recordingMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return nil
}

func TestDailySummaryJobRendersReport(t *testing.T) {
	mailer := &recordingMailer{}
	job := &DailySummaryJob{Mailer: mailer, Recipients: []string{"audit@hotel.test"}}
	task, err := NewDailySummaryTask(DailySummaryPayload{Fact: sampleFact()})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"audit@hotel.test"}, mailer.to)
	require.Equal(t, "Night audit 2026-03-10, hotel 3", mailer.subject)
	require.Contains(t, mailer.body, "1,234.50")
	require.Contains(t, mailer.body, "25 / 40")
	require.Contains(t, mailer.body, "62.50%")
}

func TestDailySummaryJobSkipsRetryOnBadPayload(t *testing.T) {
	job := &DailySummaryJob{Mailer: &recordingMailer{}}
	err := job.Handle(context.Background(), asynq.NewTask(TaskDailySummaryReport, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeDetector struct {
	found   []repair.Candidate
	hotelID *int64
}

func (d *fakeDetector) Detect(_ context.Context, hotelID *int64, _ int) ([]repair.Candidate, error) {
	d.hotelID = hotelID
	return d.found, nil
}

func TestIntegrityScanCountsAnomalies(t *testing.T) {
	detector := &fakeDetector{found: []repair.Candidate{
		{Kind: repair.KindVoidedPaymentOrphan, HotelID: 1, SourceID: 10, LinkedID: 11},
		{Kind: repair.KindVoidedPaymentOrphan, HotelID: 1, SourceID: 20, LinkedID: 21},
		{Kind: repair.KindTransferPairMismatch, HotelID: 2, SourceID: 30, LinkedID: 31},
	}}
	reg := prometheus.NewRegistry()
	job := NewIntegrityScanJob(detector, nil, jobmetrics.NewMetrics(reg))
	hotel := int64(1)
	task, err := NewIntegrityScanTask(IntegrityScanPayload{HotelID: &hotel})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, &hotel, detector.hotelID)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP folio_ledger_anomalies_total Ledger consistency violations detected by the integrity scan.
# TYPE folio_ledger_anomalies_total counter
folio_ledger_anomalies_total{hotel="1",kind="voided_payment_orphan"} 2
folio_ledger_anomalies_total{hotel="2",kind="transfer_pair_mismatch"} 1
`), "folio_ledger_anomalies_total"))
}

type fakeScheduler struct{ calls int }

func (s *fakeScheduler) EnqueueNightAudits(context.Context) (jobqueue.ScheduleResult, error) {
	s.calls++
	return jobqueue.ScheduleResult{}, nil
}

func TestNightAuditScheduleJobDelegates(t *testing.T) {
	scheduler := &fakeScheduler{}
	job := &NightAuditScheduleJob{Scheduler: scheduler}
	require.NoError(t, job.Handle(context.Background(), NewNightAuditScheduleTask()))
	require.Equal(t, 1, scheduler.calls)
}

type fakeInspector struct{ err error }

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.QueueInfo{Queue: queue, Pending: 4, Active: 1}, nil
}

type fakeMonitor struct{ jobs []jobqueue.Job }

func (f fakeMonitor) Check(context.Context) ([]jobqueue.Job, error) {
	return f.jobs, nil
}

func TestHandlerRoutes(t *testing.T) {
	started := time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)
	id := uuid.New()
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(fakeInspector{}, fakeMonitor{jobs: []jobqueue.Job{
		{ID: id, Type: jobqueue.TypeNightAudit, Status: jobqueue.StatusProcessing, Attempts: 2, StartedAt: &started},
	}}, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":4,"active":1,"retry":0}`, rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/stuck", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Count int `json:"count"`
		Jobs  []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, id.String(), body.Jobs[0].ID)
	require.Equal(t, "NIGHT_AUDIT", body.Jobs[0].Type)
}

func TestHandlerHealthUnavailable(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(fakeInspector{err: errors.New("redis down")}, nil, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
