package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Recorder receives settlement outcomes for metrics.
type Recorder interface {
	SettlementRun(outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) SettlementRun(string, time.Duration) {}

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = 30 * time.Second
	maxRetryDelay      = time.Hour
	defaultStaleAfter  = 15 * time.Minute
)

type Service struct {
	store       StoreAPI
	recorder    Recorder
	now         func() time.Time
	maxAttempts int
	retryDelay  time.Duration
	staleAfter  time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

func NewService(store StoreAPI, opts ...Option) *Service {
	s := &Service{
		store:       store,
		recorder:    nopRecorder{},
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		staleAfter:  defaultStaleAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settle writes the pay element summaries for an approved finalization.
// A second call for the same finalization returns ErrAlreadySettled and
// writes nothing.
func (s *Service) Settle(ctx context.Context, finalizationID string) (Run, error) {
	scope, err := s.store.LoadScope(ctx, finalizationID)
	if err != nil {
		return Run{}, err
	}
	if scope.PayrollSummaryCreatedAt != nil {
		return Run{}, ErrAlreadySettled
	}
	if scope.WorkflowStatus != readyStatus {
		return Run{}, ErrNotReadyForSettlement
	}

	in := Input{FinalizationID: finalizationID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Entries, err = s.store.TimeEntries(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		in.Rates, err = s.store.Rates(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		in.Rules, err = s.store.OvertimeRules(gctx, scope.CompanyID)
		return err
	})
	g.Go(func() error {
		var err error
		in.Leave, err = s.store.LeaveTransactions(gctx, scope)
		return err
	})
	if err := g.Wait(); err != nil {
		return Run{}, err
	}

	result, err := Calculate(in)
	if err != nil {
		return Run{}, err
	}

	now := s.now()
	run := Run{
		FinalizationID: finalizationID,
		RowCount:       len(result.Summaries),
		TotalGross:     result.TotalGross,
		CreatedAt:      now,
	}
	for i := range result.Summaries {
		result.Summaries[i].CreatedAt = now
	}
	err = s.store.InTx(ctx, func(repo Repository) error {
		inserted, err := repo.InsertRun(ctx, run)
		if err != nil {
			return err
		}
		if !inserted {
			return ErrAlreadySettled
		}
		if err := repo.InsertSummaries(ctx, result.Summaries); err != nil {
			return err
		}
		if err := repo.MarkSummariesCreated(ctx, finalizationID, now); err != nil {
			return err
		}
		return repo.CompleteJob(ctx, finalizationID, now)
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// RunJob claims and settles one queued finalization. Unclaimable jobs are
// skipped without error.
func (s *Service) RunJob(ctx context.Context, finalizationID string) error {
	now := s.now()
	job, ok, err := s.store.ClaimJob(ctx, finalizationID, now, now.Add(-s.staleAfter), s.maxAttempts)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	started := time.Now()
	run, err := s.Settle(ctx, finalizationID)
	elapsed := time.Since(started)
	switch {
	case err == nil:
		s.recorder.SettlementRun("settled", elapsed)
		slog.Info("settlement completed", "finalization_id", finalizationID, "rows", run.RowCount, "total_gross", run.TotalGross.String())
		return nil
	case errors.Is(err, ErrAlreadySettled):
		s.recorder.SettlementRun("duplicate", elapsed)
		return s.store.CompleteJob(ctx, finalizationID, s.now())
	default:
		s.recorder.SettlementRun("failed", elapsed)
		retryAt := s.now().Add(s.backoff(job.Attempts))
		if failErr := s.store.FailJob(ctx, finalizationID, err.Error(), retryAt, s.now()); failErr != nil {
			slog.Error("settlement job bookkeeping failed", "finalization_id", finalizationID, "err", failErr)
		}
		return err
	}
}

func (s *Service) PendingJobs(ctx context.Context, limit int) ([]Job, error) {
	now := s.now()
	return s.store.PendingJobs(ctx, now, now.Add(-s.staleAfter), s.maxAttempts, limit)
}

func (s *Service) Job(ctx context.Context, finalizationID string) (Job, error) {
	return s.store.GetJob(ctx, finalizationID)
}

func (s *Service) Summaries(ctx context.Context, finalizationID string) ([]Summary, error) {
	if _, err := s.store.LoadScope(ctx, finalizationID); err != nil {
		return nil, err
	}
	return s.store.ListSummaries(ctx, finalizationID)
}

// backoff doubles the retry delay per attempt, capped at maxRetryDelay.
func (s *Service) backoff(attempt int) time.Duration {
	delay := s.retryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// Total sums the gross amount of the given summaries.
func Total(summaries []Summary) decimal.Decimal {
	total := decimal.Zero
	for _, s := range summaries {
		total = total.Add(s.GrossAmount)
	}
	return total
}
