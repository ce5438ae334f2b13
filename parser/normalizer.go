package parser

import (
	"errors"

	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-etl/logging"
	"github.com/aluiziolira/go-books-etl/metrics"
	"github.com/aluiziolira/go-books-etl/models"
)

// Normalizer converts raw listings into validated books.
type Normalizer struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewNormalizer builds a Normalizer. Both arguments may be nil.
func NewNormalizer(logger *zap.Logger, m *metrics.Metrics) *Normalizer {
	return &Normalizer{
		logger:  logging.OrNop(logger).Named("normalizer"),
		metrics: m,
	}
}

// Normalize validates every raw record, dropping the malformed ones. It fails
// when raw is empty or when nothing survives.
func (n *Normalizer) Normalize(raw []models.RawBook) (*models.NormalizeResult, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}

	result := &models.NormalizeResult{
		Books: make([]models.Book, 0, len(raw)),
	}
	for _, record := range raw {
		book, err := NormalizeBook(record)
		if err != nil {
			result.Rejected++
			reason := "invalid_record"
			var rejection *RejectionError
			if errors.As(err, &rejection) {
				reason = rejection.Reason
			}
			n.metrics.IncRejected(reason)
			n.logger.Warn("invalid book record",
				zap.String("reason", reason),
				zap.Error(err),
				zap.Any("record", record),
			)
			continue
		}
		result.Books = append(result.Books, book)
	}

	if len(result.Books) == 0 {
		return nil, &AllRecordsInvalidError{Rejected: result.Rejected}
	}

	n.logger.Info("cleaned book records",
		zap.Int("valid", len(result.Books)),
		zap.Int("rejected", result.Rejected),
	)
	return result, nil
}

// NormalizeBook converts one raw record. The returned error is a *RejectionError.
func NormalizeBook(raw models.RawBook) (models.Book, error) {
	price, err := ParsePrice(raw.Price)
	if err != nil {
		return models.Book{}, &RejectionError{Reason: ReasonInvalidPrice, Err: err}
	}
	title, err := NormalizeTitle(raw.Title)
	if err != nil {
		return models.Book{}, &RejectionError{Reason: ReasonMissingTitle, Err: err}
	}
	return models.Book{
		Title:  title,
		Author: NormalizeAuthor(raw.Author),
		Price:  price,
		Rating: ParseRating(raw.Rating),
	}, nil
}
