package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/ever-scraper/internal/browser"
	"github.com/maltedev/ever-scraper/internal/models"
)

var (
	// ErrInterstitialTimeout never leaves the session; it becomes OutcomeNeedsRerun.
	ErrInterstitialTimeout      = errors.New("branch selection modal did not close")
	ErrEmptyExtraction          = errors.New("no products extracted, the site structure may have changed")
	ErrStructuralElementMissing = errors.New("expected page structure missing")
	ErrPaginationStalled        = errors.New("infinite scroll never reached the end of results")
)

// Driver is the browser automation surface the session needs.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Text(ctx context.Context, selector string) (string, error)
	Click(ctx context.Context, selector string) (browser.ClickResult, error)
	Press(ctx context.Context, selector, key string) error
	ScrollToBottom(ctx context.Context) error
	Cards(ctx context.Context, container, nameSelector, priceSelector string) ([]browser.ProductCard, error)
	Close() error
}

// Launcher acquires a fresh driver for one pass.
type Launcher func(ctx context.Context) (Driver, error)

// Exporter writes the artifact for one category and returns its location.
type Exporter interface {
	Export(ctx context.Context, category string, records []models.ProductRecord) (string, error)
}

// RecordSink receives a copy of every exported category. Failures are not fatal.
type RecordSink interface {
	Name() string
	Save(ctx context.Context, category string, records []models.ProductRecord) error
}

type Selectors struct {
	Title         string
	ConfirmBranch string
	Body          string
	Sentinel      string
	SaleCard      string
	RegularCard   string
	CardName      string
	CardPrice     string
}

// NOTE - selectors follow the live markup of ever.ph and are subject to change
func DefaultSelectors() Selectors {
	return Selectors{
		Title:         ".section-header--title.section-header--left.h1",
		ConfirmBranch: `xpath=//*[@id="confirmSelect"]`,
		Body:          "body",
		Sentinel:      `xpath=//*[@id="CollectionSection"]/div/div/div[3]/button/span[2]`,
		SaleCard:      ".productContainer.grid-item.on-sale.slide-up-animation.animated",
		RegularCard:   ".productContainer.grid-item.slide-up-animation.animated:not(.on-sale)",
		CardName:      ".productNameContainer",
		CardPrice:     ".product-item--price",
	}
}

type Timing struct {
	InterstitialSettle time.Duration
	ScrollSettle       time.Duration
	PageUpSettle       time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		InterstitialSettle: 10 * time.Second,
		ScrollSettle:       3 * time.Second,
		PageUpSettle:       5 * time.Second,
	}
}

type Options struct {
	Selectors             Selectors
	Timing                Timing
	MaxInterstitialClicks int
	MaxScrollCycles       int
	EndOfResults          string
	PageUpKey             string
}

func DefaultOptions() Options {
	return Options{
		Selectors:             DefaultSelectors(),
		Timing:                DefaultTiming(),
		MaxInterstitialClicks: 3,
		MaxScrollCycles:       500,
		EndOfResults:          "No more results.",
		PageUpKey:             "PageUp",
	}
}
