// Package domain defines the connector types and ports
package domain

import (
	"context"

	"recallwatch/internal/adapters/sources"
)

// Cursors maps agency name to the opaque incremental-fetch token persisted
// from the previous run. Agencies absent from the map start a full fetch
type Cursors map[string]string

// Result is one agency's complete fetch outcome for a run.
// Err is scoped to this agency only; sibling agencies are unaffected
type Result struct {
	Agency  string
	Country string
	Records []sources.RawRecallRecord

	// NextCursor is the token to persist for the next incremental run.
	// Empty when the agency does not support incremental fetch
	NextCursor string

	Pages    int
	Attempts int
	Err      error
}

// FetcherPort streams per-agency results as each agency finishes.
// The channel closes once every selected agency has reported
type FetcherPort interface {
	// FetchAll fans out to the registered agencies; only narrows the set
	// when non-empty
	FetchAll(ctx context.Context, since Cursors, only []string) <-chan Result
	Agencies() []string
}
