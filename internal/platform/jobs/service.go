package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"hrflow/internal/domain/settlement"
	"hrflow/internal/domain/workflow"
	"hrflow/internal/platform/config"
	"hrflow/internal/platform/querier"
	"hrflow/internal/requestctx"
)

const (
	JobSettlement    = "settlement"
	JobWorkflowSweep = "workflow_sweep"
)

// Settler runs queued settlement work.
type Settler interface {
	RunJob(ctx context.Context, finalizationID string) error
	PendingJobs(ctx context.Context, limit int) ([]settlement.Job, error)
}

// Sweeper closes workflow instances past their auto-terminate deadline.
type Sweeper interface {
	ListOverdue(ctx context.Context, limit int) ([]workflow.Instance, error)
	AutoTerminate(ctx context.Context, instanceID string) (workflow.Instance, error)
}

type Recorder interface {
	JobRun(jobType, status string)
	SweepResult(result string)
}

type nopRecorder struct{}

func (nopRecorder) JobRun(string, string) {}
func (nopRecorder) SweepResult(string)    {}

type Service struct {
	// DB receives job_runs bookkeeping. A nil DB skips it.
	DB  querier.Querier
	Cfg config.Config

	settler  Settler
	sweeper  Sweeper
	recorder Recorder
	queue    chan job
}

type job struct {
	Type  string
	Scope string
	Run   func(context.Context) (any, error)
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func New(db querier.Querier, cfg config.Config, settler Settler, sweeper Sweeper, opts ...Option) *Service {
	size := cfg.JobQueueSize
	if size <= 0 {
		size = 128
	}
	s := &Service{
		DB:       db,
		Cfg:      cfg,
		settler:  settler,
		sweeper:  sweeper,
		recorder: nopRecorder{},
		queue:    make(chan job, size),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.settler != nil && s.Cfg.SettlementPollInterval > 0 {
		go s.every(ctx, s.Cfg.SettlementPollInterval, func(ctx context.Context) {
			if _, err := s.PollSettlements(ctx); err != nil {
				slog.Warn("settlement poll failed", "err", err)
			}
		})
	}
	if s.sweeper != nil && s.Cfg.WorkflowSweepInterval > 0 {
		go s.every(ctx, s.Cfg.WorkflowSweepInterval, func(ctx context.Context) {
			if _, err := s.RunNow(ctx, JobWorkflowSweep, "", func(ctx context.Context) (any, error) {
				return s.Sweep(ctx)
			}); err != nil {
				slog.Warn("workflow sweep failed", "err", err)
			}
		})
	}
}

// Enqueue hands work to the background worker. It reports false when the
// queue is full; the pollers pick the work up on a later tick.
func (s *Service) Enqueue(jobType, scope string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, Scope: scope, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType, "scope", scope)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, scope string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Scope: scope, Run: run})
}

// EnqueueSettlement queues the settlement of one approved finalization.
func (s *Service) EnqueueSettlement(finalizationID string) bool {
	if s.settler == nil {
		return false
	}
	return s.Enqueue(JobSettlement, finalizationID, func(ctx context.Context) (any, error) {
		return map[string]any{"finalizationId": finalizationID}, s.settler.RunJob(ctx, finalizationID)
	})
}

// PollSettlements enqueues every claimable settlement job and returns how
// many were handed to the worker.
func (s *Service) PollSettlements(ctx context.Context) (int, error) {
	pending, err := s.settler.PendingJobs(ctx, cap(s.queue))
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, j := range pending {
		if !s.EnqueueSettlement(j.FinalizationID) {
			break
		}
		queued++
	}
	if queued > 0 {
		slog.Info("settlement jobs queued", "count", queued)
	}
	return queued, nil
}

type SweepReport struct {
	Terminated int `json:"terminated"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Sweep auto-terminates overdue instances batch by batch. Instances that
// moved on concurrently, or are no longer due, count as skipped. Each
// instance is visited at most once per sweep.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	batch := s.Cfg.WorkflowSweepBatch
	if batch <= 0 {
		batch = 100
	}
	seen := map[string]struct{}{}
	for ctx.Err() == nil {
		limit := batch + len(seen)
		overdue, err := s.sweeper.ListOverdue(ctx, limit)
		if err != nil {
			return report, err
		}
		for _, inst := range overdue {
			if _, ok := seen[inst.ID]; ok {
				continue
			}
			seen[inst.ID] = struct{}{}
			_, err := s.sweeper.AutoTerminate(ctx, inst.ID)
			switch {
			case err == nil:
				report.Terminated++
				s.recorder.SweepResult("terminated")
			case errors.Is(err, workflow.ErrConcurrentModification),
				errors.Is(err, workflow.ErrNotDue),
				errors.Is(err, workflow.ErrInstanceTerminal):
				report.Skipped++
				s.recorder.SweepResult("skipped")
			default:
				report.Failed++
				s.recorder.SweepResult("failed")
				requestctx.Logger(ctx).Warn("auto-terminate failed", "instance_id", inst.ID, "err", err)
			}
		}
		if len(overdue) < limit {
			return report, nil
		}
	}
	return report, ctx.Err()
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				requestctx.Logger(requestctx.WithJob(ctx, j.Type, j.Scope)).Warn("job run failed", "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	ctx = requestctx.WithJob(ctx, j.Type, j.Scope)
	runID := s.startRun(ctx, j)

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	s.recorder.JobRun(j.Type, status)
	s.finishRun(ctx, runID, status, details, err)
	return details, err
}

func (s *Service) startRun(ctx context.Context, j job) string {
	if s.DB == nil {
		return ""
	}
	var runID string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, scope, status)
    VALUES ($1,$2,'running')
    RETURNING id::text
  `, j.Type, j.Scope).Scan(&runID); err != nil {
		requestctx.Logger(ctx).Warn("job run insert failed", "err", err)
		return ""
	}
	return runID
}

func (s *Service) finishRun(ctx context.Context, runID, status string, details any, runErr error) {
	if runID == "" {
		return
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		requestctx.Logger(ctx).Warn("job details marshal failed", "err", err)
		detailsJSON = []byte("{}")
	}
	var lastError string
	if runErr != nil {
		lastError = runErr.Error()
	}
	if _, err := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, error = $3, completed_at = now()
    WHERE id = $4
  `, status, detailsJSON, lastError, runID); err != nil {
		requestctx.Logger(ctx).Warn("job run update failed", "err", err)
	}
}

func (s *Service) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
