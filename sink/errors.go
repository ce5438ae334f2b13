package sink

import "fmt"

// NoRecordsInsertedError is returned when a write finished without inserting a row.
type NoRecordsInsertedError struct {
	Skipped int
}

func (e *NoRecordsInsertedError) Error() string {
	return fmt.Sprintf("no records were inserted (%d skipped)", e.Skipped)
}

// DatabaseWriteError wraps a database failure. The transaction has been rolled
// back by the time it is returned, so no row of the run is persisted.
type DatabaseWriteError struct {
	Op    string // schema, begin, insert or commit
	Batch int    // 1-based insert batch, 0 outside the insert loop
	Err   error
}

func (e *DatabaseWriteError) Error() string {
	if e.Batch > 0 {
		return fmt.Sprintf("database %s failed at batch %d: %v", e.Op, e.Batch, e.Err)
	}
	return fmt.Sprintf("database %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseWriteError) Unwrap() error {
	return e.Err
}
