package domain

import (
	"context"

	"recallwatch/internal/core/ident"
)

// ReaderPort is the read-only query surface the API layer consumes
type ReaderPort interface {
	// ByIdentifier returns records whose normalized identifier matches
	// exactly; a miss is an empty slice, never an error
	ByIdentifier(ctx context.Context, kind ident.Kind, value string) ([]RecallRecord, error)

	// ByText returns up to limit records ranked by fuzzy relevance over
	// product name, brand and description
	ByText(ctx context.Context, query string, limit int) ([]TextHit, error)

	// ByCompositeFilter lists records with keyset pagination
	ByCompositeFilter(ctx context.Context, f CompositeFilter) (RecordPage, error)
}

// WriterPort is exercised only by the ingestion pipeline
type WriterPort interface {
	// UpsertBatch inserts or updates records keyed on
	// (agency, source_native_id) and returns the stored rows with their
	// assigned IDs plus insert/update counts
	UpsertBatch(ctx context.Context, recs []RecallRecord) (stored []RecallRecord, inserted, updated int, err error)
}
