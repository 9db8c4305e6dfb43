package parser

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TotalPages reads the "Page <n> of <total>" indicator.
func TotalPages(doc *goquery.Document) (int, bool) {
	if doc == nil {
		return 0, false
	}
	current := doc.Find("li.current").First()
	if current.Length() == 0 {
		return 0, false
	}
	parts := strings.Fields(current.Text())
	if len(parts) < 3 || parts[len(parts)-2] != "of" {
		return 0, false
	}
	total, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || total <= 0 {
		return 0, false
	}
	return total, true
}

// NextPageURL resolves the "next" control against current. A false result
// means the traversal is complete.
func NextPageURL(doc *goquery.Document, current *url.URL) (string, bool) {
	if doc == nil {
		return "", false
	}
	href, ok := doc.Find("li.next a").First().Attr("href")
	if !ok {
		return "", false
	}
	next := ResolveURL(current, href)
	return next, next != ""
}
