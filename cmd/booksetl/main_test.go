package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-books-etl/config"
	"github.com/aluiziolira/go-books-etl/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BOOKS_ETL_DATABASE_URL", "")
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSchemaPrint(t *testing.T) {
	out, err := execute(t, "schema", "--print", "--table", "library")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS library")
}

func TestRejectsInvalidTable(t *testing.T) {
	_, err := execute(t, "schema", "--print", "--table", "books; drop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestRunRequiresDatabase(t *testing.T) {
	_, err := execute(t, "run", "--target", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	result := &models.RunResult{
		RunID:     "run-1",
		StartTime: start,
		EndTime:   start.Add(1500 * time.Millisecond),
		Collected: 40,
		Valid:     38,
		Rejected:  2,
		Inserted:  37,
		Skipped:   1,
		Pages:     3,
	}
	cfg := config.DefaultConfig()
	cfg.Export.File = "out/books.csv"

	var out bytes.Buffer
	printSummary(&out, result, cfg, errors.New("write: boom"))

	text := out.String()
	for _, want := range []string{"run-1", "failure", "1.5s", "out/books.csv (csv)", "write: boom"} {
		assert.Contains(t, text, want)
	}
}
