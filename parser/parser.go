// Package parser turns scraped listing text into validated books.
package parser

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aluiziolira/go-books-etl/models"
)

// MaxTextLength is the column width of the title and author fields, in characters.
const MaxTextLength = 255

// Rating bounds.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Rejection reasons, also used as metric labels.
const (
	ReasonMissingTitle = "missing_title"
	ReasonInvalidPrice = "invalid_price"
)

var (
	errMissingTitle  = errors.New("title is missing")
	errInvalidPrice  = errors.New("price must be a non-negative number")
	priceReplacer    = strings.NewReplacer("$", "", "£", "", "€", "", "¥", "", "₹", "", "Â", "", ",", "")
	spaceRemovalFunc = func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}
)

// ValidateBook ensures a validated book respects the column constraints.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return errors.New("book is nil")
	}
	if strings.TrimSpace(b.Title) == "" {
		return errMissingTitle
	}
	if utf8.RuneCountInString(b.Title) > MaxTextLength {
		return errors.New("title exceeds 255 characters")
	}
	if utf8.RuneCountInString(b.Author) > MaxTextLength {
		return errors.New("author exceeds 255 characters")
	}
	if b.Price < 0 || math.IsNaN(b.Price) || math.IsInf(b.Price, 0) {
		return errInvalidPrice
	}
	if b.Rating < MinRating || b.Rating > MaxRating || math.IsNaN(b.Rating) {
		return errors.New("rating out of range")
	}
	return nil
}

// NormalizePrice removes currency symbols, thousands separators and whitespace.
func NormalizePrice(price string) string {
	price = priceReplacer.Replace(price)
	return strings.Map(spaceRemovalFunc, price)
}

// ParsePrice coerces scraped price text into a number. Empty or unparseable
// text yields 0; a negative or non-finite value is an error.
func ParsePrice(text string) (float64, error) {
	cleaned := NormalizePrice(text)
	if cleaned == "" {
		return 0, nil
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, nil
	}
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, errInvalidPrice
	}
	return price, nil
}

// ParseRating reads the first numeric token of text ("4.5 out of 5 stars")
// and clamps it into [MinRating, MaxRating]. Anything unparseable yields 0.
func ParseRating(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	rating, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(rating) {
		return 0
	}
	return math.Min(math.Max(rating, MinRating), MaxRating)
}

// NormalizeTitle trims and truncates a title. It returns an error if nothing remains.
func NormalizeTitle(title string) (string, error) {
	title = cleanText(title)
	if title == "" {
		return "", errMissingTitle
	}
	return Truncate(title, MaxTextLength), nil
}

// NormalizeAuthor trims and truncates an author, defaulting to "Unknown".
func NormalizeAuthor(author string) string {
	author = cleanText(author)
	if author == "" {
		return models.UnknownAuthor
	}
	return Truncate(author, MaxTextLength)
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

func cleanText(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, ""))
}
