package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/go-books-etl/config"
	"github.com/aluiziolira/go-books-etl/models"
)

func printSummary(out io.Writer, result *models.RunResult, cfg *config.Config, runErr error) {
	status := "success"
	if runErr != nil {
		status = "failure"
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Run summary")
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Run ID", result.RunID},
		{"Status", status},
		{"Query", cfg.Scraper.Query},
		{"Pages fetched", result.Pages},
		{"Fetch errors", result.FetchErrors},
		{"Duplicates", result.Duplicates},
		{"Collected", result.Collected},
		{"Valid", result.Valid},
		{"Rejected", result.Rejected},
		{"Inserted", result.Inserted},
		{"Skipped", result.Skipped},
		{"Table", cfg.Database.Table},
		{"Duration", result.Duration().Round(time.Millisecond)},
	})
	if cfg.Export.File != "" {
		t.AppendRow(table.Row{"Export", fmt.Sprintf("%s (%s)", cfg.Export.File, cfg.Export.Format)})
	}
	if runErr != nil {
		t.AppendRow(table.Row{"Error", runErr.Error()})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
