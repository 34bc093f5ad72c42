package question

import "errors"

// Error taxonomy for the per-question pipeline. Components wrap these with %w so the
// orchestrator can classify failures with errors.Is.
var (
	// ErrNotFound means the page had no primary heading; the identifier is skipped silently.
	ErrNotFound = errors.New("question not found")
	// ErrFetch wraps page fetcher failures.
	ErrFetch = errors.New("fetch page")
	// ErrExtract wraps unexpected parse failures.
	ErrExtract = errors.New("extract page")
	// ErrStore wraps record store failures.
	ErrStore = errors.New("store record")
	// ErrPublish wraps workspace failures.
	ErrPublish = errors.New("publish record")
	// ErrInvalidRecord is returned when a record is missing its key or title.
	ErrInvalidRecord = errors.New("invalid record")
)
