// Package models defines data structures shared by the pipeline stages.
package models

import "time"

// UnknownAuthor is stored when a listing carries no author.
const UnknownAuthor = "Unknown"

// RawBook is a listing as scraped from the search results page. Every field
// is unvalidated markup text and may be empty.
type RawBook struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Price  string `json:"price"`
	Rating string `json:"rating"`
}

// Book is a validated listing ready to be persisted.
type Book struct {
	Title  string  `csv:"title" json:"title"`
	Author string  `csv:"author" json:"author"`
	Price  float64 `csv:"price" json:"price"`
	Rating float64 `csv:"rating" json:"rating"`
}

// CollectResult holds the output of one collector pass.
type CollectResult struct {
	Books       []RawBook
	Pages       int
	FetchErrors int
	Duplicates  int
}

// NormalizeResult holds the output of one normalizer pass.
type NormalizeResult struct {
	Books    []Book
	Rejected int
}

// WriteResult holds the outcome of one sink write.
type WriteResult struct {
	Inserted int
	Skipped  int
	Batches  int
}

// RunResult summarises one end-to-end run.
type RunResult struct {
	RunID       string
	StartTime   time.Time
	EndTime     time.Time
	Collected   int
	Valid       int
	Rejected    int
	Inserted    int
	Skipped     int
	Pages       int
	FetchErrors int
	Duplicates  int
}

// Duration reports how long the run took.
func (r *RunResult) Duration() time.Duration {
	if r == nil || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
