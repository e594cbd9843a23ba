package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-folio/internal/jobqueue"
	"github.com/odyssey-erp/odyssey-folio/internal/nightaudit"
	"github.com/odyssey-erp/odyssey-folio/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing tasks until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Enqueuer is the subset of asynq.Client used by ReportClient.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ReportClient hands finished night audit summaries to the report queue.
type ReportClient struct {
	client     Enqueuer
	recipients []string
}

// NewReportClient constructs a ReportClient.
func NewReportClient(client Enqueuer, recipients []string) *ReportClient {
	return &ReportClient{client: client, recipients: recipients}
}

// SendDailySummaryEmail enqueues the report task. The task id is derived from
// the hotel and date so a rerun of the audit does not send a second report
// while the first one is still queued.
func (c *ReportClient) SendDailySummaryEmail(ctx context.Context, fact nightaudit.DailySummaryFact) error {
	task, err := NewDailySummaryTask(DailySummaryPayload{Fact: fact, Recipients: c.recipients})
	if err != nil {
		return err
	}
	id := "daily-summary:" + fact.AuditDate.Format("2006-01-02") + ":" + formatID(fact.HotelID)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.TaskID(id),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// QueueInspector reports asynq queue depth.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector QueueInspector
	monitor   StuckChecker
	logger    *slog.Logger
}

// StuckChecker lists durable jobs stuck in processing.
type StuckChecker interface {
	Check(ctx context.Context) ([]jobqueue.Job, error)
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, monitor StuckChecker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, monitor: monitor, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/stuck", h.stuck)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Retry   int    `json:"retry"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	body := queueHealth{Queue: QueueDefault}
	if h.inspector != nil {
		info, err := h.inspector.GetQueueInfo(QueueDefault)
		if err != nil {
			h.logger.Warn("jobs health", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
			return
		}
		if info != nil {
			body = queueHealth{Queue: info.Queue, Pending: info.Pending, Active: info.Active, Retry: info.Retry}
		}
	}
	httpx.JSON(w, http.StatusOK, body)
}

type stuckJob struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Attempts  int        `json:"attempts"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

func (h *Handler) stuck(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"count": 0, "jobs": []stuckJob{}})
		return
	}
	found, err := h.monitor.Check(r.Context())
	if err != nil {
		h.logger.Warn("jobs stuck", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]stuckJob, 0, len(found))
	for _, job := range found {
		out = append(out, stuckJob{ID: job.ID.String(), Type: string(job.Type), Attempts: job.Attempts, StartedAt: job.StartedAt})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"count": len(out), "jobs": out})
}
