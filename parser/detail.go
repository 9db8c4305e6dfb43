package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// ParseDetail reads UPC, description and category from a product page.
// Each field is looked up independently and is nil when its markup is missing.
func ParseDetail(doc *goquery.Document) models.DetailRecord {
	if doc == nil {
		return models.DetailRecord{}
	}
	return models.DetailRecord{
		UPC:         productInfo(doc, "UPC"),
		Description: description(doc),
		Category:    category(doc),
	}
}

func productInfo(doc *goquery.Document, key string) *string {
	var value *string
	doc.Find("table.table-striped tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if strings.TrimSpace(row.Find("th").First().Text()) != key {
			return true
		}
		if td := row.Find("td").First(); td.Length() > 0 {
			value = optionalString(td.Text())
		}
		return false
	})
	return value
}

func description(doc *goquery.Document) *string {
	p := doc.Find("#product_description").First().NextAllFiltered("p").First()
	if p.Length() == 0 {
		return nil
	}
	return optionalString(p.Text())
}

// category is the third breadcrumb entry: Home / Books / <category> / <title>.
func category(doc *goquery.Document) *string {
	items := doc.Find("ul.breadcrumb li")
	if items.Length() < 3 {
		return nil
	}
	return optionalString(items.Eq(2).Text())
}
