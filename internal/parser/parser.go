package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CategoryContainerSelector marks one category tile on the collections page.
const CategoryContainerSelector = "div.grid-item.small--one-half.medium--one-third.large--one-fifth"

var ErrNoCategoryLinks = errors.New("no category links found")

// ParseCategoryLinks returns the absolute category URLs in page order,
// deduplicated, resolved against base.
func ParseCategoryLinks(html string, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var links []string
	seen := make(map[string]struct{})

	doc.Find(CategoryContainerSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find("a").First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}

		abs := base.ResolveReference(ref).String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})

	if len(links) == 0 {
		return nil, fmt.Errorf("%w: selector %q matched nothing", ErrNoCategoryLinks, CategoryContainerSelector)
	}

	return links, nil
}
