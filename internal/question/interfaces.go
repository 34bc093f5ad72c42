package question

import (
	"context"
	"time"
)

// Fetcher returns the rendered HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Close()
}

// Extractor turns rendered HTML into a Record.
type Extractor interface {
	Extract(html string, id int) (Record, error)
}

// Store persists records keyed by question id.
type Store interface {
	Upsert(ctx context.Context, record Record) error
	FetchAll(ctx context.Context) ([]Record, error)
}

// Chunker converts a record into workspace blocks.
type Chunker interface {
	Chunk(record Record) []Block
}

// Publisher mirrors a record into the external workspace.
type Publisher interface {
	Publish(ctx context.Context, record Record, blocks []Block) error
	Enabled() bool
}

// Clock returns the current time and sleeps (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
