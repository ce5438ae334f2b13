package sink

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-books-etl/metrics"
	"github.com/aluiziolira/go-books-etl/models"
)

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func sampleBooks(n int) []models.Book {
	books := make([]models.Book, n)
	for i := range books {
		books[i] = models.Book{
			Title:  fmt.Sprintf("Book %d", i+1),
			Author: "Author",
			Price:  float64(i) + 0.99,
			Rating: 4.5,
		}
	}
	return books
}

func newMockWriter(t *testing.T, batchSize int, m *metrics.Metrics) (*Writer, pgxmock.PgxConnIface) {
	t.Helper()
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	w, err := NewWriter(mock, "books", batchSize, nil, m)
	require.NoError(t, err)
	return w, mock
}

func TestWriteBatchesInSingleTransaction(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	w, mock := newMockWriter(t, 100, m)

	mock.ExpectBegin()
	for _, rows := range []int{100, 100, 50} {
		mock.ExpectExec("INSERT INTO books \\(title, author, price, rating\\) VALUES").
			WithArgs(anyArgs(rows * columnsPerRow)...).
			WillReturnResult(pgxmock.NewResult("INSERT", int64(rows)))
	}
	mock.ExpectCommit()

	result, err := w.Write(context.Background(), sampleBooks(250))
	require.NoError(t, err)
	assert.Equal(t, &models.WriteResult{Inserted: 250, Skipped: 0, Batches: 3}, result)
	assert.InDelta(t, 250, testutil.ToFloat64(m.RowsInsertedTotal), 0)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteSendsRowValuesInOrder(t *testing.T) {
	t.Parallel()

	w, mock := newMockWriter(t, 10, nil)
	books := []models.Book{
		{Title: "Data Engineering 101", Author: "", Price: 12.99, Rating: 4.5},
		{Title: "Streaming Systems", Author: "Tyler Akidau", Price: 0, Rating: 0},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO books (title, author, price, rating) VALUES ($1,$2,$3,$4),($5,$6,$7,$8)")).
		WithArgs("Data Engineering 101", models.UnknownAuthor, 12.99, 4.5, "Streaming Systems", "Tyler Akidau", 0.0, 0.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	result, err := w.Write(context.Background(), books)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	w, mock := newMockWriter(t, 100, m)
	books := []models.Book{
		{Title: "Good", Author: "A", Price: 1, Rating: 1},
		{Title: "  ", Author: "A", Price: 1, Rating: 1},
		{Title: "Too expensive", Author: "A", Price: 1e9, Rating: 1},
		{Title: "NaN price", Author: "A", Price: math.NaN(), Rating: 1},
		{Title: strings.Repeat("x", 256), Author: "A", Price: 1, Rating: 1},
		{Title: "Bad rating", Author: "A", Price: 1, Rating: 7},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO books").
		WithArgs(anyArgs(columnsPerRow)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	result, err := w.Write(context.Background(), books)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 5, result.Skipped)
	assert.InDelta(t, 5, testutil.ToFloat64(m.RowsSkippedTotal), 0)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRollsBackOnInsertError(t *testing.T) {
	t.Parallel()

	w, mock := newMockWriter(t, 2, nil)
	boom := errors.New("value too long for type character varying(255)")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO books").
		WithArgs(anyArgs(2 * columnsPerRow)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("INSERT INTO books").
		WithArgs(anyArgs(2 * columnsPerRow)...).
		WillReturnError(boom)
	mock.ExpectRollback()

	result, err := w.Write(context.Background(), sampleBooks(5))
	require.Error(t, err)
	assert.Nil(t, result)

	var dbErr *DatabaseWriteError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, "insert", dbErr.Op)
	assert.Equal(t, 2, dbErr.Batch)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteAllRowsSkipped(t *testing.T) {
	t.Parallel()

	w, mock := newMockWriter(t, 100, nil)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := w.Write(context.Background(), []models.Book{{Title: ""}, {Title: "x", Price: -1}})
	var noRows *NoRecordsInsertedError
	require.True(t, errors.As(err, &noRows))
	assert.Equal(t, 2, noRows.Skipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteEmptyInput(t *testing.T) {
	t.Parallel()

	w, mock := newMockWriter(t, 100, nil)
	_, err := w.Write(context.Background(), nil)
	var noRows *NoRecordsInsertedError
	require.True(t, errors.As(err, &noRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteBeginAndCommitFailures(t *testing.T) {
	t.Parallel()

	t.Run("begin", func(t *testing.T) {
		w, mock := newMockWriter(t, 100, nil)
		mock.ExpectBegin().WillReturnError(errors.New("connection closed"))

		_, err := w.Write(context.Background(), sampleBooks(1))
		var dbErr *DatabaseWriteError
		require.True(t, errors.As(err, &dbErr))
		assert.Equal(t, "begin", dbErr.Op)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit", func(t *testing.T) {
		w, mock := newMockWriter(t, 100, nil)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO books").
			WithArgs(anyArgs(columnsPerRow)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
		mock.ExpectRollback()

		_, err := w.Write(context.Background(), sampleBooks(1))
		var dbErr *DatabaseWriteError
		require.True(t, errors.As(err, &dbErr))
		assert.Equal(t, "commit", dbErr.Op)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	w, mock := newMockWriter(t, 100, nil)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS books (")).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, w.EnsureSchema(context.Background()))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS books").
		WillReturnError(errors.New("permission denied for schema public"))
	err := w.EnsureSchema(context.Background())
	var dbErr *DatabaseWriteError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, "schema", dbErr.Op)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaSQLColumns(t *testing.T) {
	t.Parallel()

	w, _ := newMockWriter(t, 100, nil)
	ddl := w.SchemaSQL()
	for _, column := range []string{
		"id SERIAL PRIMARY KEY",
		"title VARCHAR(255) NOT NULL",
		"author VARCHAR(255)",
		"price NUMERIC(10,2)",
		"rating NUMERIC(3,1)",
		"created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
	} {
		assert.Contains(t, ddl, column)
	}
}

func TestNewWriterValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewConn()
	require.NoError(t, err)

	_, err = NewWriter(nil, "books", 100, nil, nil)
	require.Error(t, err)

	_, err = NewWriter(mock, "books; DROP TABLE books", 100, nil, nil)
	require.Error(t, err)

	w, err := NewWriter(mock, "", 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "books", w.table)
	assert.Equal(t, DefaultBatchSize, w.batchSize)

	mock.ExpectClose()
	require.NoError(t, w.Close(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSQLPlaceholders(t *testing.T) {
	t.Parallel()

	w, _ := newMockWriter(t, 100, nil)
	assert.Equal(t, "INSERT INTO books (title, author, price, rating) VALUES ($1,$2,$3,$4)", w.insertSQL(1))
	assert.True(t, strings.HasSuffix(w.insertSQL(3), "($9,$10,$11,$12)"))
}
