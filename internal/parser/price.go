package parser

import (
	"errors"
	"fmt"
	"strings"
)

const CurrencyGlyph = "₱"

var ErrPriceLayout = errors.New("unexpected price layout")

// Shape distinguishes the two product card layouts on a category page.
type Shape int

const (
	ShapeRegular Shape = iota
	ShapeSale
)

func (s Shape) String() string {
	if s == ShapeSale {
		return "sale"
	}
	return "regular"
}

// TokenIndex is the position of the price among the whitespace-split tokens
// of the card's price block.
func (s Shape) TokenIndex() int {
	if s == ShapeSale {
		return 6
	}
	return 2
}

// ParsePrice extracts the price for a card of the given shape, without the
// currency glyph.
func ParsePrice(text string, shape Shape) (string, error) {
	tokens := strings.Fields(text)
	idx := shape.TokenIndex()

	if len(tokens) <= idx {
		return "", fmt.Errorf("%w: %s card needs %d tokens, got %d in %q",
			ErrPriceLayout, shape, idx+1, len(tokens), text)
	}

	price := strings.ReplaceAll(tokens[idx], CurrencyGlyph, "")
	if price == "" {
		return "", fmt.Errorf("%w: %s card has a bare currency glyph at token %d", ErrPriceLayout, shape, idx+1)
	}

	return price, nil
}
