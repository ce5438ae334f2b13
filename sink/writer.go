// Package sink persists validated books into Postgres.
package sink

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-etl/config"
	"github.com/aluiziolira/go-books-etl/logging"
	"github.com/aluiziolira/go-books-etl/metrics"
	"github.com/aluiziolira/go-books-etl/models"
)

const (
	// DefaultBatchSize is the number of rows sent per INSERT statement.
	DefaultBatchSize = 100

	maxTextLength = 255
	// NUMERIC(10,2) holds at most 99999999.99.
	maxPrice  = 99999999.995
	maxRating = 5.0

	columnsPerRow = 4
)

var (
	errEmptyTitle    = errors.New("title is empty")
	errTitleTooLong  = errors.New("title exceeds 255 characters")
	errAuthorTooLong = errors.New("author exceeds 255 characters")
	errBadPrice      = errors.New("price does not fit NUMERIC(10,2)")
	errBadRating     = errors.New("rating out of range")
)

// Conn is the subset of *pgx.Conn used by the writer.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// Connect opens the single connection used by a run.
func Connect(ctx context.Context, dsn string) (*pgx.Conn, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return conn, nil
}

// Writer inserts books into one table.
type Writer struct {
	conn      Conn
	table     string
	batchSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewWriter builds a writer over conn. A batchSize <= 0 selects DefaultBatchSize.
func NewWriter(conn Conn, table string, batchSize int, logger *zap.Logger, m *metrics.Metrics) (*Writer, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if table == "" {
		table = "books"
	}
	if !config.ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Writer{
		conn:      conn,
		table:     table,
		batchSize: batchSize,
		logger:    logging.OrNop(logger).Named("sink"),
		metrics:   m,
	}, nil
}

// Close releases the connection.
func (w *Writer) Close(ctx context.Context) error {
	if w == nil || w.conn == nil {
		return nil
	}
	if err := w.conn.Close(ctx); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

// SchemaSQL returns the idempotent DDL for the target table.
func (w *Writer) SchemaSQL() string {
	return SchemaSQL(w.table)
}

// SchemaSQL returns the DDL for table. The name must already be validated.
func SchemaSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	author VARCHAR(255),
	price NUMERIC(10,2),
	rating NUMERIC(3,1),
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, table)
}

// EnsureSchema creates the target table if it does not exist yet.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.conn.Exec(ctx, w.SchemaSQL()); err != nil {
		w.logger.Error("failed to create table", zap.String("table", w.table), zap.Error(err))
		return &DatabaseWriteError{Op: "schema", Err: err}
	}
	w.logger.Info("table ready", zap.String("table", w.table))
	return nil
}

// Write inserts books in batches inside a single transaction. Either every
// insertable row of the call is committed or none is.
func (w *Writer) Write(ctx context.Context, books []models.Book) (*models.WriteResult, error) {
	if len(books) == 0 {
		return nil, &NoRecordsInsertedError{}
	}

	tx, err := w.conn.Begin(ctx)
	if err != nil {
		return nil, &DatabaseWriteError{Op: "begin", Err: err}
	}

	result := &models.WriteResult{}
	for start, batch := 0, 1; start < len(books); start, batch = start+w.batchSize, batch+1 {
		end := min(start+w.batchSize, len(books))

		args := make([]any, 0, columnsPerRow*(end-start))
		for _, book := range books[start:end] {
			row, err := prepareRow(book)
			if err != nil {
				result.Skipped++
				w.logger.Warn("skipping malformed row",
					zap.Int("batch", batch),
					zap.String("title", book.Title),
					zap.Error(err),
				)
				continue
			}
			args = append(args, row...)
		}
		rows := len(args) / columnsPerRow
		if rows == 0 {
			continue
		}

		tag, err := tx.Exec(ctx, w.insertSQL(rows), args...)
		if err != nil {
			w.rollback(ctx, tx)
			w.logger.Error("batch insert failed", zap.Int("batch", batch), zap.Int("rows", rows), zap.Error(err))
			return nil, &DatabaseWriteError{Op: "insert", Batch: batch, Err: err}
		}
		result.Inserted += int(tag.RowsAffected())
		result.Batches++
		w.logger.Debug("inserted batch", zap.Int("batch", batch), zap.Int64("rows", tag.RowsAffected()))
	}

	w.metrics.AddSkipped(result.Skipped)
	if result.Inserted == 0 {
		w.rollback(ctx, tx)
		return nil, &NoRecordsInsertedError{Skipped: result.Skipped}
	}

	if err := tx.Commit(ctx); err != nil {
		w.rollback(ctx, tx)
		w.logger.Error("commit failed", zap.Error(err))
		return nil, &DatabaseWriteError{Op: "commit", Err: err}
	}

	w.metrics.AddInserted(result.Inserted)
	w.logger.Info("inserted books",
		zap.String("table", w.table),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("batches", result.Batches),
	)
	return result, nil
}

func (w *Writer) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		w.logger.Warn("rollback failed", zap.Error(err))
	}
}

func (w *Writer) insertSQL(rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (title, author, price, rating) VALUES ", w.table)
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		base := i * columnsPerRow
		b.WriteString("($")
		b.WriteString(strconv.Itoa(base + 1))
		b.WriteString(",$")
		b.WriteString(strconv.Itoa(base + 2))
		b.WriteString(",$")
		b.WriteString(strconv.Itoa(base + 3))
		b.WriteString(",$")
		b.WriteString(strconv.Itoa(base + 4))
		b.WriteByte(')')
	}
	return b.String()
}

// prepareRow converts a book into insert arguments, rejecting values the
// column types cannot hold.
func prepareRow(book models.Book) ([]any, error) {
	title := strings.TrimSpace(book.Title)
	switch {
	case title == "":
		return nil, errEmptyTitle
	case utf8.RuneCountInString(title) > maxTextLength:
		return nil, errTitleTooLong
	case utf8.RuneCountInString(book.Author) > maxTextLength:
		return nil, errAuthorTooLong
	case math.IsNaN(book.Price) || book.Price < 0 || book.Price >= maxPrice:
		return nil, errBadPrice
	case math.IsNaN(book.Rating) || book.Rating < 0 || book.Rating > maxRating:
		return nil, errBadRating
	}
	author := book.Author
	if strings.TrimSpace(author) == "" {
		author = models.UnknownAuthor
	}
	return []any{title, author, book.Price, book.Rating}, nil
}
