package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/go-books-etl/models"
)

// MultiWriter fans every call out to several writers.
type MultiWriter struct {
	writers []OutputWriter
}

// NewDualWriter archives the same records as CSV and JSON Lines.
func NewDualWriter(csvFilename, jsonFilename, runID string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename, runID)
	if err != nil {
		return nil, err
	}
	jsonWriter, err := NewJSONWriter(jsonFilename, runID)
	if err != nil {
		_ = csvWriter.Close()
		return nil, err
	}
	return &MultiWriter{writers: []OutputWriter{csvWriter, jsonWriter}}, nil
}

// Write stops at the first failing writer.
func (m *MultiWriter) Write(books []models.Book) error {
	for i, w := range m.writers {
		if err := w.Write(books); err != nil {
			return fmt.Errorf("writer %d: %w", i, err)
		}
	}
	return nil
}

func (m *MultiWriter) Close() error {
	return m.each(OutputWriter.Close)
}

func (m *MultiWriter) Validate() error {
	return m.each(OutputWriter.Validate)
}

func (m *MultiWriter) each(fn func(OutputWriter) error) error {
	var errs []error
	for _, w := range m.writers {
		if err := fn(w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
