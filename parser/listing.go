package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// CardSelector matches one product card on a listing page.
const CardSelector = "article.product_pod"

// ParseListingItem extracts the summary fields of a product card. Links are
// resolved against base, the URL of the page the card was found on.
func ParseListingItem(card *goquery.Selection, base *url.URL) models.ListingItem {
	link := card.Find("h3 a").First()

	name := strings.TrimSpace(link.AttrOr("title", ""))
	if name == "" {
		name = strings.TrimSpace(link.Text())
	}

	priceText := strings.TrimSpace(card.Find("p.price_color").First().Text())

	item := models.ListingItem{
		Name:         name,
		PriceText:    priceText,
		Availability: availability(card),
		URL:          ResolveURL(base, link.AttrOr("href", "")),
	}
	if price, ok := ParsePrice(priceText); ok {
		item.Price = &price
	}
	if rating, ok := RatingFromMarker(ratingMarker(card)); ok {
		item.Rating = &rating
	}
	return item
}

// ratingMarker returns the class next to "star-rating", e.g. "Three".
func ratingMarker(card *goquery.Selection) string {
	classes := strings.Fields(card.Find("p.star-rating").First().AttrOr("class", ""))
	for _, class := range classes {
		if class != "star-rating" {
			return class
		}
	}
	return ""
}

func availability(card *goquery.Selection) string {
	text := strings.TrimSpace(card.Find("p.instock.availability").First().Text())
	if text == "" {
		text = strings.TrimSpace(card.Find("p.availability").First().Text())
	}
	return text
}
