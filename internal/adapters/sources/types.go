// Package sources defines the agency adapter contract and the shared
// plumbing every adapter uses: a resilient HTTP client and a registry of
// configured agencies
package sources

import (
	"context"
	"time"
)

// RawRecallRecord is the agency-native shape after adapter parsing.
// Values are carried as the agency provided them; normalization happens
// downstream. Not persisted
type RawRecallRecord struct {
	Agency         string
	SourceNativeID string

	Title       string
	ProductName string
	Brand       string
	HazardText  string
	Remedy      string

	// RawDate as published; DateFormats lists the agency-declared layouts
	// tried before the common fallback set
	RawDate     string
	DateFormats []string

	// raw product identifiers, possibly absent or malformed
	UPC    string
	Model  string
	Lot    string
	Serial string

	Country   string
	SourceURL string
}

// Page is one fetch step of an adapter
type Page struct {
	Records    []RawRecallRecord
	NextCursor string
	HasMore    bool
}

// Adapter translates one agency's wire format into RawRecallRecords.
// Implementations are stateless beyond the network call; cursor is an opaque
// token the adapter itself issued on a previous page (empty means start)
type Adapter interface {
	Name() string
	Country() string
	Settings() Settings
	Fetch(ctx context.Context, cursor string) (Page, error)
}

// Settings carries the per-agency knobs the connector enforces
type Settings struct {
	BaseURL    string
	Enabled    bool
	RatePerSec float64
	Burst      int
	Timeout    time.Duration
	PageSize   int
}
