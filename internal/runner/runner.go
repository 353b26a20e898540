package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/ever-scraper/internal/browser"
	"github.com/maltedev/ever-scraper/internal/metrics"
	"github.com/maltedev/ever-scraper/internal/models"
	"github.com/maltedev/ever-scraper/internal/pacing"
	"github.com/maltedev/ever-scraper/internal/queue"
)

var (
	ErrRetryBudgetExhausted = errors.New("connectivity retry budget exhausted")
	ErrTooManyReruns        = errors.New("rerun limit reached")
)

// RunContext is the state shared by every pass of one run.
type RunContext struct {
	RunID  uuid.UUID
	Date   time.Time
	RunDir string
	Queue  *queue.WorkQueue
}

func NewRunContext(date time.Time, runDir string, items []models.CategoryWorkItem) *RunContext {
	return &RunContext{
		RunID:  uuid.New(),
		Date:   date,
		RunDir: runDir,
		Queue:  queue.NewWorkQueue(items),
	}
}

// Pass is one scrape session over the pending work.
type Pass interface {
	Run(ctx context.Context, q *queue.WorkQueue) (models.ScrapeOutcome, error)
}

// Observer is told once when the run finishes.
type Observer interface {
	RunFinished(ctx context.Context, status Status) error
}

type Options struct {
	RetryBudget   int
	RerunCooldown time.Duration
	MaxReruns     int // 0 means unlimited
}

func DefaultOptions() Options {
	return Options{
		RetryBudget:   5,
		RerunCooldown: 10 * time.Second,
	}
}

// Status is a point-in-time snapshot of a run.
type Status struct {
	RunID                uuid.UUID `json:"run_id"`
	Date                 string    `json:"date"`
	Passes               int       `json:"passes"`
	Reruns               int       `json:"reruns"`
	ConnectivityFailures int       `json:"connectivity_failures"`
	RetryBudget          int       `json:"retry_budget"`
	Completed            int       `json:"completed"`
	Remaining            int       `json:"remaining"`
	Finished             bool      `json:"finished"`
	Outcome              string    `json:"outcome,omitempty"`
	Error                string    `json:"error,omitempty"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at,omitempty"`
}

// Runner repeats passes until the work list is exhausted or a fatal error
// occurs. Connectivity failures are counted across the whole run.
type Runner struct {
	pass      Pass
	run       *RunContext
	pauser    pacing.Pauser
	rng       *rand.Rand
	opts      Options
	metrics   *metrics.Metrics
	observers []Observer
	logger    *slog.Logger

	mu     sync.RWMutex
	status Status
}

func New(pass Pass, run *RunContext, pauser pacing.Pauser, rng *rand.Rand, opts Options, logger *slog.Logger) *Runner {
	return &Runner{
		pass:   pass,
		run:    run,
		pauser: pauser,
		rng:    rng,
		opts:   opts,
		logger: logger.With("component", "runner", "run_id", run.RunID.String()),
		status: Status{
			RunID:       run.RunID,
			Date:        run.Date.Format("2006-01-02"),
			RetryBudget: opts.RetryBudget,
			Remaining:   run.Queue.Size(),
		},
	}
}

func (r *Runner) WithMetrics(m *metrics.Metrics) *Runner {
	r.metrics = m
	return r
}

func (r *Runner) WithObservers(observers ...Observer) *Runner {
	r.observers = append(r.observers, observers...)
	return r
}

// Status returns a copy of the current run state. Safe for concurrent use.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) Run(ctx context.Context) (models.ScrapeOutcome, error) {
	r.update(func(s *Status) { s.StartedAt = time.Now() })
	r.metrics.SetRemaining(r.run.Queue.Size())

	r.logger.Info("starting run",
		"categories", r.run.Queue.Size(),
		"run_dir", r.run.RunDir,
		"retry_budget", r.opts.RetryBudget)

	for {
		r.update(func(s *Status) { s.Passes++ })

		outcome, err := r.pass.Run(ctx, r.run.Queue)
		r.syncProgress()

		switch {
		case err != nil && errors.Is(err, browser.ErrConnectivity):
			r.metrics.IncPass("connectivity_failure")
			r.metrics.IncConnectivityFailure()

			var failures int
			r.update(func(s *Status) {
				s.ConnectivityFailures++
				failures = s.ConnectivityFailures
			})

			if failures > r.opts.RetryBudget {
				r.logger.Error("browser driver unreachable, giving up",
					"failures", failures, "budget", r.opts.RetryBudget, "error", err)
				return r.finish(ctx, models.OutcomeAborted,
					fmt.Errorf("%w after %d failures: %w", ErrRetryBudgetExhausted, failures, err))
			}

			r.logger.Warn("browser driver unreachable, starting a new session",
				"failures", failures, "budget", r.opts.RetryBudget, "error", err)
			if err := r.pauser.Pause(ctx, r.opts.RerunCooldown); err != nil {
				return r.finish(ctx, models.OutcomeAborted, err)
			}
			continue

		case err != nil:
			r.metrics.IncPass(models.OutcomeAborted.String())
			return r.finish(ctx, models.OutcomeAborted, err)

		case outcome == models.OutcomeCompleted:
			r.metrics.IncPass(outcome.String())
			return r.finish(ctx, models.OutcomeCompleted, nil)
		}

		r.metrics.IncPass(outcome.String())

		var reruns int
		r.update(func(s *Status) {
			s.Reruns++
			reruns = s.Reruns
		})
		if r.opts.MaxReruns > 0 && reruns > r.opts.MaxReruns {
			return r.finish(ctx, models.OutcomeAborted,
				fmt.Errorf("%w: %d reruns", ErrTooManyReruns, r.opts.MaxReruns))
		}

		r.run.Queue.Shuffle(r.rng)
		r.logger.Info("rerunning scraper starting from a different category",
			"rerun", reruns, "remaining", r.run.Queue.Size())

		if err := r.pauser.Pause(ctx, r.opts.RerunCooldown); err != nil {
			return r.finish(ctx, models.OutcomeAborted, err)
		}
	}
}

func (r *Runner) finish(ctx context.Context, outcome models.ScrapeOutcome, runErr error) (models.ScrapeOutcome, error) {
	r.update(func(s *Status) {
		s.Finished = true
		s.Outcome = outcome.String()
		s.FinishedAt = time.Now()
		if runErr != nil {
			s.Error = runErr.Error()
		}
	})

	status := r.Status()
	if runErr != nil {
		r.logger.Error("run aborted", "passes", status.Passes, "completed", status.Completed, "error", runErr)
	} else {
		r.logger.Info("run finished", "passes", status.Passes, "completed", status.Completed)
	}

	// Observers report even when ctx is already cancelled.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for _, o := range r.observers {
		if err := o.RunFinished(notifyCtx, status); err != nil {
			r.logger.Warn("failed to report run completion", "error", err)
		}
	}

	return outcome, runErr
}

func (r *Runner) syncProgress() {
	completed, remaining := r.run.Queue.Completed(), r.run.Queue.Size()
	r.update(func(s *Status) {
		s.Completed = completed
		s.Remaining = remaining
	})
	r.metrics.SetRemaining(remaining)
}

func (r *Runner) update(fn func(s *Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
}
