package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-books-etl/models"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatDual = "dual"
)

// OutputWriter archives the validated books of a run.
type OutputWriter interface {
	Write(books []models.Book) error
	Close() error
	Validate() error
}

// NewExportWriter opens a writer for format at file, stamping every record
// with runID. For "dual" the file extension is replaced by .csv and .jsonl.
func NewExportWriter(format, file, runID string) (OutputWriter, error) {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		return NewCSVWriter(file, runID)
	case FormatJSON:
		return NewJSONWriter(file, runID)
	case FormatDual:
		base := strings.TrimSuffix(file, filepath.Ext(file))
		return NewDualWriter(base+".csv", base+".jsonl", runID)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// exportFile is the buffered file shared by the concrete writers.
type exportFile struct {
	kind  string
	path  string
	file  *os.File
	buf   *bufio.Writer
	runID string
	rows  int
}

func createExportFile(kind, path, runID string) (*exportFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s export: %w", kind, err)
	}
	return &exportFile{kind: kind, path: path, file: f, buf: bufio.NewWriter(f), runID: runID}, nil
}

func (e *exportFile) Close() error {
	flushErr := e.buf.Flush()
	closeErr := e.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush %s export: %w", e.kind, flushErr)
	}
	return closeErr
}

// Validate fails when no record reached the file.
func (e *exportFile) Validate() error {
	if e.rows == 0 {
		return fmt.Errorf("%s export %s has no records", e.kind, e.path)
	}
	return nil
}

// CSVWriter writes one header row and one row per book.
type CSVWriter struct {
	*exportFile
	csv *csv.Writer
}

var csvHeader = []string{"run_id", "title", "author", "price", "rating"}

// NewCSVWriter creates filename (and its directory) and writes the header.
func NewCSVWriter(filename, runID string) (*CSVWriter, error) {
	ef, err := createExportFile(FormatCSV, filename, runID)
	if err != nil {
		return nil, err
	}
	w := &CSVWriter{exportFile: ef, csv: csv.NewWriter(ef.buf)}
	if err := w.csv.Write(csvHeader); err != nil {
		_ = ef.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return w, nil
}

func (w *CSVWriter) Write(books []models.Book) error {
	for _, book := range books {
		row := []string{
			w.runID,
			book.Title,
			book.Author,
			strconv.FormatFloat(book.Price, 'f', 2, 64),
			strconv.FormatFloat(book.Rating, 'f', 1, 64),
		}
		if err := w.csv.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		w.rows++
	}
	w.csv.Flush()
	return w.csv.Error()
}

func (w *CSVWriter) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("flush csv rows: %w", err)
	}
	return w.exportFile.Close()
}

type jsonRecord struct {
	RunID string `json:"run_id"`
	models.Book
}

// JSONWriter writes newline-delimited JSON, one object per book.
type JSONWriter struct {
	*exportFile
	enc *json.Encoder
}

func NewJSONWriter(filename, runID string) (*JSONWriter, error) {
	ef, err := createExportFile(FormatJSON, filename, runID)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{exportFile: ef, enc: json.NewEncoder(ef.buf)}, nil
}

func (w *JSONWriter) Write(books []models.Book) error {
	for _, book := range books {
		if err := w.enc.Encode(jsonRecord{RunID: w.runID, Book: book}); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		w.rows++
	}
	return nil
}
