// Package domain defines the canonical recall record and query contracts
package domain

import (
	"time"

	"recallwatch/internal/core/classify"
	"recallwatch/internal/core/ident"
)

// RecallRecord is the canonical unit of truth. (Agency, SourceNativeID) is
// the composite uniqueness key; it never changes after first insert, later
// runs update mutable fields in place
type RecallRecord struct {
	ID             string `json:"id"`
	Agency         string `json:"agency"`
	SourceNativeID string `json:"source_native_id"`

	ProductName string `json:"product_name"`
	Brand       string `json:"brand,omitempty"`

	// normalized identifiers, nil when absent or malformed
	UPC    *string `json:"upc,omitempty"`
	Model  *string `json:"model,omitempty"`
	Lot    *string `json:"lot,omitempty"`
	Serial *string `json:"serial,omitempty"`

	Hazard   classify.Hazard   `json:"hazard"`
	Severity classify.Severity `json:"severity"`

	Description string `json:"description,omitempty"`
	Remedy      string `json:"remedy,omitempty"`

	RecallDate time.Time `json:"recall_date"`
	Country    string    `json:"country"`
	SourceURL  string    `json:"source_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identifier returns the normalized identifier value for kind, "" when nil
func (r *RecallRecord) Identifier(kind ident.Kind) string {
	var p *string
	switch kind {
	case ident.KindUPC:
		p = r.UPC
	case ident.KindModel:
		p = r.Model
	case ident.KindLot:
		p = r.Lot
	case ident.KindSerial:
		p = r.Serial
	}
	if p == nil {
		return ""
	}
	return *p
}

// NonNullFields counts populated fields, the dedup canonical-pick metric
func (r *RecallRecord) NonNullFields() int {
	n := 0
	for _, s := range []string{r.ProductName, r.Brand, r.Description, r.Remedy, r.Country, r.SourceURL} {
		if s != "" {
			n++
		}
	}
	for _, p := range []*string{r.UPC, r.Model, r.Lot, r.Serial} {
		if p != nil && *p != "" {
			n++
		}
	}
	if !r.RecallDate.IsZero() {
		n++
	}
	return n
}

// TextHit is one ranked fuzzy search result
type TextHit struct {
	Record RecallRecord `json:"record"`
	Score  float64      `json:"score"`
}

// CompositeFilter narrows the paged listing; nil/empty fields are skipped
type CompositeFilter struct {
	Agency   string
	Country  string
	Category string
	DateFrom *time.Time
	DateTo   *time.Time

	Cursor string
	Limit  int
}

// RecordPage is one keyset page of records
type RecordPage struct {
	Records    []RecallRecord `json:"records"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
