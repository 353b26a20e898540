package models

import (
	"time"
)

// CategoryWorkItem is one category page to visit. Identity is the URL.
type CategoryWorkItem struct {
	URL string `json:"url"`
}

// ProductRecord is one product row captured from a category page.
type ProductRecord struct {
	Category   string    `json:"product_category"`
	Name       string    `json:"product_name"`
	Price      string    `json:"price"`
	CapturedAt time.Time `json:"created_time"`
}

// ScrapeOutcome is the result of one pass over the work list.
type ScrapeOutcome int

const (
	OutcomeCompleted ScrapeOutcome = iota
	OutcomeNeedsRerun
	OutcomeAborted
)

func (o ScrapeOutcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeNeedsRerun:
		return "needs_rerun"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func NewWorkItems(urls []string) []CategoryWorkItem {
	items := make([]CategoryWorkItem, 0, len(urls))
	for _, u := range urls {
		items = append(items, CategoryWorkItem{URL: u})
	}
	return items
}

func (r *ProductRecord) Validate() []string {
	var errors []string

	if r.Category == "" {
		errors = append(errors, "Category is required")
	}

	if r.Name == "" {
		errors = append(errors, "Name is required")
	}

	if r.Price == "" {
		errors = append(errors, "Price is required")
	}

	if r.CapturedAt.IsZero() {
		errors = append(errors, "CapturedAt is required")
	}

	return errors
}
