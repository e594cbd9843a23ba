package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"

	jobmetrics "github.com/odyssey-erp/odyssey-folio/internal/jobs"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// Store is the durable queue used by the worker.
type Store interface {
	// Claim atomically moves the oldest eligible job of the given types to processing.
	Claim(ctx context.Context, types []Type, now time.Time) (Job, error)
	Complete(ctx context.Context, id uuid.UUID, at time.Time) error
	Fail(ctx context.Context, id uuid.UUID, attempts int, lastError string, at time.Time) error
}

// Handler executes one job.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Config tunes the polling loop.
type Config struct {
	PollInterval time.Duration
}

// Worker polls the store and dispatches claimed jobs to their handler.
type Worker struct {
	store    Store
	handlers map[Type]Handler
	cfg      Config
	metrics  *jobmetrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorker constructs a worker. A zero poll interval defaults to 5s.
func NewWorker(store Store, cfg Config, metrics *jobmetrics.Metrics, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Worker{
		store:    store,
		handlers: map[Type]Handler{},
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (w *Worker) WithNow(now func() time.Time) {
	if now != nil {
		w.now = now
	}
}

// Register binds a handler to a job type. Only registered types are claimed.
func (w *Worker) Register(t Type, h Handler) {
	if h == nil {
		return
	}
	w.handlers[t] = h
}

// Types lists the job types this worker claims, sorted.
func (w *Worker) Types() []Type {
	out := make([]Type, 0, len(w.handlers))
	for t := range w.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Run polls until ctx is cancelled. Job failures and panics never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return errors.New("jobqueue: no handlers registered")
	}
	w.log().Info("job worker started", slog.Any("types", w.Types()), slog.Duration("poll_interval", w.cfg.PollInterval))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.log().Error("job worker poll", slog.Any("error", err))
		}
		if processed {
			continue
		}
		timer := time.NewTimer(w.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.Claim(ctx, w.Types(), w.now())
	if errors.Is(err, ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("jobqueue: claim: %w", err)
	}
	logger := w.log().With(
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", string(job.Type)),
		slog.Int("attempt", job.Attempts+1),
	)
	logger.Info("job claimed")

	tracker := w.metrics.Track(string(job.Type))
	runErr := tracker.End(w.dispatch(ctx, job))
	// Terminal status is written even when shutdown cancelled the handler.
	storeCtx := context.WithoutCancel(ctx)
	if runErr == nil {
		if err := w.store.Complete(storeCtx, job.ID, w.now()); err != nil {
			return true, fmt.Errorf("jobqueue: complete %s: %w", job.ID, err)
		}
		logger.Info("job completed")
		return true, nil
	}

	attempts, message, parked := failure(job, runErr)
	if err := w.store.Fail(storeCtx, job.ID, attempts, message, w.now()); err != nil {
		return true, fmt.Errorf("jobqueue: fail %s: %w", job.ID, err)
	}
	if parked {
		w.metrics.Parked(string(job.Type))
		logger.Error("job parked", slog.String("last_error", message))
	} else {
		logger.Warn("job failed", slog.String("last_error", message))
	}
	return true, nil
}

func (w *Worker) dispatch(ctx context.Context, job Job) (err error) {
	h, ok := w.handlers[job.Type]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownType, job.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			w.log().Error("job panic", slog.String("job_id", job.ID.String()), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("jobqueue: panic: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}

// failure computes the attempt count and the operator facing error text.
// Configuration errors park the job at once.
func failure(job Job, err error) (int, string, bool) {
	ceiling := RetryCeiling(job.Type)
	attempts := job.Attempts + 1
	if errors.Is(err, shared.ErrConfiguration) && attempts < ceiling {
		attempts = ceiling
	}
	message := fmt.Sprintf("%s (attempt %d/%d)", err.Error(), job.Attempts+1, ceiling)
	parked := attempts >= ceiling
	if parked {
		message += "; parked, requeue manually after fixing the cause"
	}
	return attempts, message, parked
}

func (w *Worker) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.Default()
}
