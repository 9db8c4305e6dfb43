// Package parser turns catalog markup into typed fields. Nothing here performs I/O
// and nothing here fails on malformed markup: missing structure yields absent fields.
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

var priceToken = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

// ValidateItem reports listing cards that lack the fields needed to identify a product.
func ValidateItem(item models.ListingItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("listing item missing name")
	}
	if strings.TrimSpace(item.URL) == "" {
		return fmt.Errorf("listing item missing link for %s", item.Name)
	}
	return nil
}

// ParsePrice extracts the first number from a displayed price, ignoring
// currency symbols and thousands separators.
func ParsePrice(text string) (float64, bool) {
	token := priceToken.FindString(strings.ReplaceAll(text, ",", ""))
	if token == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// RatingFromMarker converts the textual star rating to a numeric scale.
func RatingFromMarker(word string) (int, bool) {
	switch strings.TrimSpace(word) {
	case "One":
		return 1, true
	case "Two":
		return 2, true
	case "Three":
		return 3, true
	case "Four":
		return 4, true
	case "Five":
		return 5, true
	default:
		return 0, false
	}
}

// ResolveURL resolves href against base. It returns "" when either side is unusable.
func ResolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	return base.ResolveReference(ref).String()
}

func optionalString(text string) *string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &text
}
