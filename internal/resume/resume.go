package resume

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/maltedev/ever-scraper/internal/models"
)

// DefaultDenylist names categories that can never be scraped: the COVID page
// has a broken submit control and evp19 is a promotional campaign page.
var DefaultDenylist = []string{"covid", "evp19"}

// Lister is the filesystem collaborator.
type Lister interface {
	List(dir string) ([]string, error)
}

// Filter removes already-exported and denylisted categories from the work list.
type Filter struct {
	lister   Lister
	denylist []string
	rng      *rand.Rand
	logger   *slog.Logger
}

func NewFilter(lister Lister, denylist []string, rng *rand.Rand, logger *slog.Logger) *Filter {
	return &Filter{
		lister:   lister,
		denylist: denylist,
		rng:      rng,
		logger:   logger.With("component", "resume_filter"),
	}
}

// CompletedTokens derives one category token per artifact in dir.
func (f *Filter) CompletedTokens(dir string) ([]string, error) {
	names, err := f.lister.List(dir)
	if err != nil {
		return nil, fmt.Errorf("list completed artifacts: %w", err)
	}

	var tokens []string
	for _, name := range names {
		if !strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}
		if token := CategoryToken(name); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

// CategoryToken reduces an artifact file name such as
// "Fruits & Vegetables_20261015.csv" to its first letters-only word ("Fruits").
func CategoryToken(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	letters := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, base)

	fields := strings.Fields(letters)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Apply returns the items whose URL path matches neither a completed token
// nor the denylist, in shuffled order.
func (f *Filter) Apply(items []models.CategoryWorkItem, dir string) ([]models.CategoryWorkItem, error) {
	completed, err := f.CompletedTokens(dir)
	if err != nil {
		return nil, err
	}

	pattern, err := excludePattern(append(completed, f.denylist...))
	if err != nil {
		return nil, err
	}

	filtered := make([]models.CategoryWorkItem, 0, len(items))
	for _, item := range items {
		if pattern != nil && pattern.MatchString(urlPath(item.URL)) {
			continue
		}
		filtered = append(filtered, item)
	}

	f.rng.Shuffle(len(filtered), func(i, j int) {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	})

	f.logger.Info("filtered work list",
		"total", len(items),
		"completed_tokens", len(completed),
		"excluded", len(items)-len(filtered),
		"remaining", len(filtered))

	return filtered, nil
}

func excludePattern(tokens []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	if len(quoted) == 0 {
		return nil, nil
	}

	re, err := regexp.Compile("(?i)(" + strings.Join(quoted, "|") + ")")
	if err != nil {
		return nil, fmt.Errorf("compile exclude pattern: %w", err)
	}
	return re, nil
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}
