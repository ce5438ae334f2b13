package scraper

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-books-etl/models"
	"github.com/aluiziolira/go-books-etl/parser"
)

const resultItemSelector = "div.s-result-item"

var (
	titleRules = []parser.Rule[*goquery.Selection]{
		childText("h2 .a-text-normal"),
		childText(".a-text-normal"),
		childText("h2"),
	}
	authorRules = []parser.Rule[*goquery.Selection]{
		childText(".a-size-base.a-link-normal"),
		childText(".a-row .a-size-base"),
	}
	priceRules = []parser.Rule[*goquery.Selection]{
		wholeAndFraction(".a-price-whole", ".a-price-fraction"),
	}
	ratingRules = []parser.Rule[*goquery.Selection]{
		func(s *goquery.Selection) string {
			return parser.FirstNumericToken(s.Find(".a-icon-alt").First().Text())
		},
	}
)

func childText(selector string) parser.Rule[*goquery.Selection] {
	return func(s *goquery.Selection) string {
		return s.Find(selector).First().Text()
	}
}

// wholeAndFraction joins the two halves of a split price ("45." and "99").
func wholeAndFraction(wholeSelector, fractionSelector string) parser.Rule[*goquery.Selection] {
	return func(s *goquery.Selection) string {
		whole := strings.TrimSpace(s.Find(wholeSelector).First().Text())
		whole = strings.TrimRight(whole, ".")
		if whole == "" {
			return ""
		}
		fraction := strings.TrimSpace(s.Find(fractionSelector).First().Text())
		if fraction == "" {
			return whole
		}
		return whole + "." + fraction
	}
}

// ParseListings extracts raw listings from a search results page. It also
// returns the number of result containers seen, including those skipped for
// lack of a title, so callers can tell an empty page from a page of noise.
func ParseListings(body []byte) ([]models.RawBook, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("parse search page: %w", err)
	}

	containers := doc.Find(resultItemSelector)
	books := make([]models.RawBook, 0, containers.Length())
	containers.Each(func(_ int, item *goquery.Selection) {
		title := parser.FirstMatch(item, titleRules)
		if title == "" {
			return
		}
		books = append(books, models.RawBook{
			Title:  title,
			Author: parser.FirstMatchOr(item, authorRules, models.UnknownAuthor),
			Price:  parser.FirstMatchOr(item, priceRules, "0"),
			Rating: parser.FirstMatchOr(item, ratingRules, "0"),
		})
	})
	return books, containers.Length(), nil
}
