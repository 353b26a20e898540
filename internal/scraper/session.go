package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/ever-scraper/internal/browser"
	"github.com/maltedev/ever-scraper/internal/metrics"
	"github.com/maltedev/ever-scraper/internal/models"
	"github.com/maltedev/ever-scraper/internal/pacing"
	"github.com/maltedev/ever-scraper/internal/parser"
	"github.com/maltedev/ever-scraper/internal/queue"
)

// Session runs one pass over the work queue with a single browser driver.
type Session struct {
	launch   Launcher
	exporter Exporter
	sinks    []RecordSink
	pauser   pacing.Pauser
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewSession(launch Launcher, exporter Exporter, pauser pacing.Pauser, opts Options, logger *slog.Logger) *Session {
	return &Session{
		launch:   launch,
		exporter: exporter,
		pauser:   pauser,
		opts:     opts,
		logger:   logger.With("component", "scrape_session"),
		now:      time.Now,
	}
}

func (s *Session) WithSinks(sinks ...RecordSink) *Session {
	s.sinks = append(s.sinks, sinks...)
	return s
}

func (s *Session) WithMetrics(m *metrics.Metrics) *Session {
	s.metrics = m
	return s
}

func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// Run visits every pending item in order. The driver is released exactly once
// on every exit path. A modal that never closes ends the pass early with
// OutcomeNeedsRerun and a nil error.
func (s *Session) Run(ctx context.Context, q *queue.WorkQueue) (models.ScrapeOutcome, error) {
	items := q.Pending()
	if len(items) == 0 {
		s.logger.Info("already gathered all categories for today")
		return models.OutcomeCompleted, nil
	}

	drv, err := s.launch(ctx)
	if err != nil {
		return models.OutcomeAborted, fmt.Errorf("failed to start browser session: %w", err)
	}
	defer func() {
		if err := drv.Close(); err != nil {
			s.logger.Warn("failed to release browser session", "error", err)
		}
	}()

	s.logger.Info("scrape pass started", "categories", len(items))

	for i, item := range items {
		err := s.scrapeCategory(ctx, drv, item, i)
		if errors.Is(err, ErrInterstitialTimeout) {
			s.metrics.IncInterstitialTimeout()
			s.logger.Warn("branch selection modal did not close, stopping pass",
				"attempts", s.opts.MaxInterstitialClicks)
			return models.OutcomeNeedsRerun, nil
		}
		if err != nil {
			return models.OutcomeAborted, err
		}

		q.MarkDone(item.URL)
		s.metrics.SetRemaining(q.Size())
	}

	s.logger.Info("scrape pass completed", "categories", len(items))
	return models.OutcomeCompleted, nil
}

func (s *Session) scrapeCategory(ctx context.Context, drv Driver, item models.CategoryWorkItem, index int) error {
	if err := drv.Navigate(ctx, item.URL); err != nil {
		return structural("navigate to category", err)
	}

	title, err := drv.Text(ctx, s.opts.Selectors.Title)
	if err != nil {
		return structural("category title", err)
	}

	logger := s.logger.With("category", title, "index", index)
	logger.Info("accessing category page", "url", item.URL)

	// The branch modal only shows on the first navigation of a browser session.
	if index == 0 {
		if err := s.dismissInterstitial(ctx, drv); err != nil {
			return err
		}
		logger.Info("branch selection modal bypassed")
	}

	cycles, err := s.paginate(ctx, drv)
	s.metrics.ObserveScrollCycles(cycles)
	if err != nil {
		return err
	}
	logger.Info("reached the bottom of the category page", "scroll_cycles", cycles)

	records, err := s.extract(ctx, drv, title, s.now())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: category %q at %s", ErrEmptyExtraction, title, item.URL)
	}

	path, err := s.exporter.Export(ctx, title, records)
	if err != nil {
		return fmt.Errorf("failed to export category %q: %w", title, err)
	}
	s.metrics.IncExported()
	logger.Info("exported category artifact", "path", path, "records", len(records))

	s.fanOut(ctx, title, records)
	return nil
}

func (s *Session) dismissInterstitial(ctx context.Context, drv Driver) error {
	for attempt := 1; attempt <= s.opts.MaxInterstitialClicks; attempt++ {
		result, err := drv.Click(ctx, s.opts.Selectors.ConfirmBranch)

		switch result {
		case browser.ClickModalClosed:
			return nil
		case browser.Clicked:
			s.logger.Debug("clicked branch confirmation", "attempt", attempt)
			if err := s.pauser.Pause(ctx, s.opts.Timing.InterstitialSettle); err != nil {
				return err
			}
		default:
			if err == nil {
				err = fmt.Errorf("click returned %s", result)
			}
			return structural("branch confirmation control", err)
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrInterstitialTimeout, s.opts.MaxInterstitialClicks)
}

// paginate drives the infinite scroll until the sentinel reports the end of
// results. It returns the number of scroll cycles performed.
func (s *Session) paginate(ctx context.Context, drv Driver) (int, error) {
	sel := s.opts.Selectors

	for cycle := 1; cycle <= s.opts.MaxScrollCycles; cycle++ {
		if err := drv.ScrollToBottom(ctx); err != nil {
			return cycle, structural("scroll to bottom", err)
		}
		if err := s.pauser.Pause(ctx, s.opts.Timing.ScrollSettle); err != nil {
			return cycle, err
		}

		// The loader stalls when the viewport stays pinned to the bottom.
		if err := drv.Press(ctx, sel.Body, s.opts.PageUpKey); err != nil {
			return cycle, structural("page up", err)
		}
		if err := s.pauser.Pause(ctx, s.opts.Timing.PageUpSettle); err != nil {
			return cycle, err
		}

		text, err := drv.Text(ctx, sel.Sentinel)
		if err != nil {
			return cycle, structural("pagination status", err)
		}
		if text == s.opts.EndOfResults {
			return cycle, nil
		}
	}

	return s.opts.MaxScrollCycles, fmt.Errorf("%w: %w: no %q after %d scroll cycles",
		ErrStructuralElementMissing, ErrPaginationStalled, s.opts.EndOfResults, s.opts.MaxScrollCycles)
}

func (s *Session) extract(ctx context.Context, drv Driver, category string, capturedAt time.Time) ([]models.ProductRecord, error) {
	shapes := []struct {
		container string
		shape     parser.Shape
	}{
		{s.opts.Selectors.SaleCard, parser.ShapeSale},
		{s.opts.Selectors.RegularCard, parser.ShapeRegular},
	}

	var records []models.ProductRecord
	for _, sh := range shapes {
		cards, err := drv.Cards(ctx, sh.container, s.opts.Selectors.CardName, s.opts.Selectors.CardPrice)
		if err != nil {
			return nil, structural(sh.shape.String()+" product cards", err)
		}

		for _, card := range cards {
			price, err := parser.ParsePrice(card.PriceText, sh.shape)
			if err != nil {
				return nil, structural(fmt.Sprintf("price of %q", card.Name), err)
			}
			records = append(records, models.ProductRecord{
				Category:   category,
				Name:       card.Name,
				Price:      price,
				CapturedAt: capturedAt,
			})
		}
		s.metrics.AddRecords(sh.shape.String(), len(cards))
	}

	return records, nil
}

func (s *Session) fanOut(ctx context.Context, category string, records []models.ProductRecord) {
	for _, sink := range s.sinks {
		if err := sink.Save(ctx, category, records); err != nil {
			s.metrics.IncSinkError(sink.Name())
			s.logger.Error("record sink failed", "sink", sink.Name(), "category", category, "error", err)
		}
	}
}

// structural tags missing-element and layout failures so callers can tell
// site drift apart from connectivity problems.
func structural(what string, err error) error {
	if errors.Is(err, browser.ErrElementMissing) || errors.Is(err, parser.ErrPriceLayout) {
		return fmt.Errorf("%w: %s: %w", ErrStructuralElementMissing, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
