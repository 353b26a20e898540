package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maltedev/ever-scraper/internal/models"
	"github.com/maltedev/ever-scraper/internal/parser"
)

const DefaultListingURL = "https://ever.ph/collections"

// ErrDiscovery means the listing page is unreachable or its markup changed.
// It is fatal and never retried.
var ErrDiscovery = errors.New("category discovery failed")

type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// Catalog discovers category work items from the collections listing page.
type Catalog struct {
	listingURL *url.URL
	http       *resty.Client
	logger     *slog.Logger
}

func New(listingURL string, opts Options, logger *slog.Logger) (*Catalog, error) {
	parsed, err := url.Parse(listingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("listing url must include a host")
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Catalog{
		listingURL: parsed,
		http:       client,
		logger:     logger.With("component", "catalog"),
	}, nil
}

func (c *Catalog) Discover(ctx context.Context) ([]models.CategoryWorkItem, error) {
	c.logger.Info("fetching category listing", "url", c.listingURL.String())

	resp, err := c.http.R().SetContext(ctx).Get(c.listingURL.String())
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrDiscovery, c.listingURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: fetch %s: status %d", ErrDiscovery, c.listingURL, resp.StatusCode())
	}

	links, err := parser.ParseCategoryLinks(resp.String(), c.listingURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}

	c.logger.Info("discovered categories", "count", len(links))
	return models.NewWorkItems(links), nil
}
