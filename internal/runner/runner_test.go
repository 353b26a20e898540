package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/ever-scraper/internal/browser"
	"github.com/maltedev/ever-scraper/internal/metrics"
	"github.com/maltedev/ever-scraper/internal/models"
	"github.com/maltedev/ever-scraper/internal/pacing"
	"github.com/maltedev/ever-scraper/internal/queue"
)

type passResult struct {
	outcome models.ScrapeOutcome
	err     error
	done    []string // urls marked done during the pass
}

// scriptedPass replays results in order and records the queue order it saw.
type scriptedPass struct {
	results []passResult
	calls   int
	orders  [][]string
}

func (p *scriptedPass) Run(_ context.Context, q *queue.WorkQueue) (models.ScrapeOutcome, error) {
	var order []string
	for _, item := range q.Pending() {
		order = append(order, item.URL)
	}
	p.orders = append(p.orders, order)

	res := p.results[len(p.results)-1]
	if p.calls < len(p.results) {
		res = p.results[p.calls]
	}
	p.calls++

	for _, url := range res.done {
		q.MarkDone(url)
	}
	return res.outcome, res.err
}

type recordingObserver struct {
	statuses []Status
}

func (o *recordingObserver) RunFinished(_ context.Context, status Status) error {
	o.statuses = append(o.statuses, status)
	return nil
}

var errUnreachable = fmt.Errorf("%w: connection refused", browser.ErrConnectivity)

func testItems(n int) []models.CategoryWorkItem {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://ever.ph/collections/c%02d", i)
	}
	return models.NewWorkItems(urls)
}

func newTestRunner(pass Pass, items []models.CategoryWorkItem, pauser pacing.Pauser, opts Options) (*Runner, *RunContext) {
	run := NewRunContext(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), "csv/20261015", items)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rng := rand.New(rand.NewPCG(42, 7))
	return New(pass, run, pauser, rng, opts, logger), run
}

func connectivityFailures(n int, then passResult) []passResult {
	results := make([]passResult, 0, n+1)
	for range n {
		results = append(results, passResult{outcome: models.OutcomeAborted, err: errUnreachable})
	}
	return append(results, then)
}

func TestRunRetryBudget(t *testing.T) {
	tests := []struct {
		name       string
		results    []passResult
		wantCalls  int
		wantErr    error
		wantResult models.ScrapeOutcome
	}{
		{
			name:       "five failures then success",
			results:    connectivityFailures(5, passResult{outcome: models.OutcomeCompleted}),
			wantCalls:  6,
			wantResult: models.OutcomeCompleted,
		},
		{
			name:       "sixth failure is fatal",
			results:    connectivityFailures(6, passResult{outcome: models.OutcomeCompleted}),
			wantCalls:  6,
			wantErr:    ErrRetryBudgetExhausted,
			wantResult: models.OutcomeAborted,
		},
		{
			name: "budget is cumulative across reruns",
			results: []passResult{
				{outcome: models.OutcomeAborted, err: errUnreachable},
				{outcome: models.OutcomeAborted, err: errUnreachable},
				{outcome: models.OutcomeNeedsRerun},
				{outcome: models.OutcomeAborted, err: errUnreachable},
				{outcome: models.OutcomeAborted, err: errUnreachable},
				{outcome: models.OutcomeNeedsRerun},
				{outcome: models.OutcomeAborted, err: errUnreachable},
				{outcome: models.OutcomeAborted, err: errUnreachable},
			},
			wantCalls:  8,
			wantErr:    ErrRetryBudgetExhausted,
			wantResult: models.OutcomeAborted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pass := &scriptedPass{results: tt.results}
			r, _ := newTestRunner(pass, testItems(3), &pacing.Recorder{}, DefaultOptions())

			outcome, err := r.Run(context.Background())

			assert.Equal(t, tt.wantResult, outcome)
			assert.Equal(t, tt.wantCalls, pass.calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, browser.ErrConnectivity)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunConnectivityRetryKeepsOrder(t *testing.T) {
	items := testItems(10)
	pass := &scriptedPass{results: connectivityFailures(2, passResult{outcome: models.OutcomeCompleted})}
	r, _ := newTestRunner(pass, items, &pacing.Recorder{}, DefaultOptions())

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, pass.orders, 3)
	assert.Equal(t, pass.orders[0], pass.orders[1])
	assert.Equal(t, pass.orders[0], pass.orders[2])
}

func TestRunRerunShufflesAndCoolsDown(t *testing.T) {
	items := testItems(10)
	pass := &scriptedPass{results: []passResult{
		{outcome: models.OutcomeNeedsRerun},
		{outcome: models.OutcomeCompleted},
	}}
	pauser := &pacing.Recorder{}
	r, run := newTestRunner(pass, items, pauser, DefaultOptions())

	outcome, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleted, outcome)
	assert.Equal(t, 2, pass.calls)
	assert.Equal(t, 1, pauser.Count(10*time.Second))

	require.Len(t, pass.orders, 2)
	assert.ElementsMatch(t, pass.orders[0], pass.orders[1])
	assert.NotEqual(t, pass.orders[0], pass.orders[1], "rerun should start from a different ordering")
	assert.Equal(t, 10, run.Queue.Size())
}

func TestRunRerunSkipsCompletedCategories(t *testing.T) {
	items := testItems(4)
	pass := &scriptedPass{results: []passResult{
		{outcome: models.OutcomeNeedsRerun, done: []string{items[0].URL, items[1].URL}},
		{outcome: models.OutcomeCompleted},
	}}
	r, _ := newTestRunner(pass, items, &pacing.Recorder{}, DefaultOptions())

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, pass.orders, 2)
	assert.ElementsMatch(t, []string{items[2].URL, items[3].URL}, pass.orders[1])

	status := r.Status()
	assert.Equal(t, 2, status.Completed)
	assert.Equal(t, 1, status.Reruns)
}

func TestRunMaxReruns(t *testing.T) {
	pass := &scriptedPass{results: []passResult{{outcome: models.OutcomeNeedsRerun}}}
	opts := DefaultOptions()
	opts.MaxReruns = 2
	r, _ := newTestRunner(pass, testItems(3), &pacing.Recorder{}, opts)

	outcome, err := r.Run(context.Background())

	assert.Equal(t, models.OutcomeAborted, outcome)
	assert.ErrorIs(t, err, ErrTooManyReruns)
	assert.Equal(t, 3, pass.calls)
}

func TestRunFatalErrorStopsImmediately(t *testing.T) {
	structural := errors.New("expected page structure missing")
	pass := &scriptedPass{results: []passResult{{outcome: models.OutcomeAborted, err: structural}}}
	observer := &recordingObserver{}
	m := metrics.New()
	r, _ := newTestRunner(pass, testItems(3), &pacing.Recorder{}, DefaultOptions())
	r.WithMetrics(m).WithObservers(observer)

	outcome, err := r.Run(context.Background())

	assert.Equal(t, models.OutcomeAborted, outcome)
	assert.ErrorIs(t, err, structural)
	assert.Equal(t, 1, pass.calls)

	require.Len(t, observer.statuses, 1)
	assert.True(t, observer.statuses[0].Finished)
	assert.Equal(t, "aborted", observer.statuses[0].Outcome)
	assert.Contains(t, observer.statuses[0].Error, "page structure")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues("aborted")))
}

func TestRunCancelledDuringCooldown(t *testing.T) {
	pass := &scriptedPass{results: []passResult{{outcome: models.OutcomeNeedsRerun}}}
	r, _ := newTestRunner(pass, testItems(3), &pacing.Recorder{}, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := r.Run(ctx)

	assert.Equal(t, models.OutcomeAborted, outcome)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, pass.calls)
}

func TestStatusSnapshot(t *testing.T) {
	items := testItems(3)
	pass := &scriptedPass{results: []passResult{
		{outcome: models.OutcomeAborted, err: errUnreachable},
		{outcome: models.OutcomeCompleted, done: []string{items[0].URL, items[1].URL, items[2].URL}},
	}}
	r, run := newTestRunner(pass, items, &pacing.Recorder{}, DefaultOptions())

	before := r.Status()
	assert.Equal(t, run.RunID, before.RunID)
	assert.Equal(t, "2026-10-15", before.Date)
	assert.Equal(t, 3, before.Remaining)
	assert.False(t, before.Finished)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	after := r.Status()
	assert.Equal(t, 2, after.Passes)
	assert.Equal(t, 1, after.ConnectivityFailures)
	assert.Equal(t, 3, after.Completed)
	assert.Equal(t, 0, after.Remaining)
	assert.Equal(t, "completed", after.Outcome)
	assert.True(t, after.Finished)
}
