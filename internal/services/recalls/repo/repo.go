// Package repo provides the Postgres repository for canonical recall records
package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recallwatch/internal/core/ident"
	"recallwatch/internal/modkit/repokit"
	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/services/recalls/domain"
)

// AfterKey is the keyset cursor position for the composite listing
type AfterKey struct {
	Date time.Time
	ID   string
}

// Storage defines the recalls repository
type Storage interface {
	// UpsertBatch writes records keyed on (agency, source_native_id) and
	// returns the stored rows with assigned ids plus insert/update counts
	UpsertBatch(ctx context.Context, recs []domain.RecallRecord) ([]domain.RecallRecord, int, int, error)

	// ByIdentifier is an exact lookup on one normalized identifier column
	ByIdentifier(ctx context.Context, kind ident.Kind, value string) ([]domain.RecallRecord, error)

	// SearchText ranks rows by trigram similarity over name, brand and
	// description (pg_trgm)
	SearchText(ctx context.Context, query string, limit int) ([]domain.TextHit, error)

	// List pages records by (recall_date, id) keyset
	List(ctx context.Context, f domain.CompositeFilter, after AfterKey, limit int) ([]domain.RecallRecord, AfterKey, error)

	// FetchSince returns records with recall_date >= since, the dedup
	// window load; zero since means everything
	FetchSince(ctx context.Context, since time.Time) ([]domain.RecallRecord, error)
}

type binder struct{}

// NewPG constructs a repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

type pg struct{ q repokit.Queryer }

const recordColumns = `
	id::text, agency, source_native_id,
	product_name, brand,
	upc, model, lot, serial_no,
	hazard, severity,
	description, remedy,
	recall_date, country, source_url,
	created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (domain.RecallRecord, error) {
	var r domain.RecallRecord
	err := row.Scan(
		&r.ID, &r.Agency, &r.SourceNativeID,
		&r.ProductName, &r.Brand,
		&r.UPC, &r.Model, &r.Lot, &r.Serial,
		&r.Hazard, &r.Severity,
		&r.Description, &r.Remedy,
		&r.RecallDate, &r.Country, &r.SourceURL,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// UpsertBatch inserts or updates one row per record. (agency,
// source_native_id) never changes after first insert; everything else is
// mutable. xmax=0 distinguishes a fresh insert from an update
func (s *pg) UpsertBatch(ctx context.Context, recs []domain.RecallRecord) ([]domain.RecallRecord, int, int, error) {
	stored := make([]domain.RecallRecord, 0, len(recs))
	var inserted, updated int
	for _, r := range recs {
		row := s.q.QueryRow(ctx, `
			INSERT INTO recall_records (
				agency, source_native_id,
				product_name, brand,
				upc, model, lot, serial_no,
				hazard, severity,
				description, remedy,
				recall_date, country, source_url
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (agency, source_native_id) DO UPDATE SET
				product_name = EXCLUDED.product_name,
				brand        = EXCLUDED.brand,
				upc          = EXCLUDED.upc,
				model        = EXCLUDED.model,
				lot          = EXCLUDED.lot,
				serial_no    = EXCLUDED.serial_no,
				hazard       = EXCLUDED.hazard,
				severity     = EXCLUDED.severity,
				description  = EXCLUDED.description,
				remedy       = EXCLUDED.remedy,
				recall_date  = EXCLUDED.recall_date,
				country      = EXCLUDED.country,
				source_url   = EXCLUDED.source_url,
				updated_at   = now()
			RETURNING `+recordColumns+`, (xmax = 0) AS was_insert
		`,
			r.Agency, r.SourceNativeID,
			r.ProductName, r.Brand,
			r.UPC, r.Model, r.Lot, r.Serial,
			string(r.Hazard), string(r.Severity),
			r.Description, r.Remedy,
			r.RecallDate, r.Country, r.SourceURL,
		)

		var out domain.RecallRecord
		var wasInsert bool
		if err := row.Scan(
			&out.ID, &out.Agency, &out.SourceNativeID,
			&out.ProductName, &out.Brand,
			&out.UPC, &out.Model, &out.Lot, &out.Serial,
			&out.Hazard, &out.Severity,
			&out.Description, &out.Remedy,
			&out.RecallDate, &out.Country, &out.SourceURL,
			&out.CreatedAt, &out.UpdatedAt,
			&wasInsert,
		); err != nil {
			return stored, inserted, updated, perr.FromPostgres(err, "recall upsert failed")
		}
		if wasInsert {
			inserted++
		} else {
			updated++
		}
		stored = append(stored, out)
	}
	return stored, inserted, updated, nil
}

// identifier kind to column; serial is quoted elsewhere so the column is
// serial_no
var identColumn = map[ident.Kind]string{
	ident.KindUPC:    "upc",
	ident.KindModel:  "model",
	ident.KindLot:    "lot",
	ident.KindSerial: "serial_no",
}

// ByIdentifier is exact-match only; no fuzzy bleed on identifier lookups
func (s *pg) ByIdentifier(ctx context.Context, kind ident.Kind, value string) ([]domain.RecallRecord, error) {
	col, ok := identColumn[kind]
	if !ok {
		return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "unknown identifier kind %q", kind)
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+recordColumns+`
		FROM recall_records
		WHERE `+col+` = $1
		ORDER BY recall_date DESC, id
	`, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RecallRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchText uses pg_trgm word_similarity so partial terms still rank
func (s *pg) SearchText(ctx context.Context, query string, limit int) ([]domain.TextHit, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+recordColumns+`,
			GREATEST(
				word_similarity($1, product_name),
				word_similarity($1, brand),
				word_similarity($1, description)
			) AS score
		FROM recall_records
		WHERE word_similarity($1, product_name) > 0.2
			OR word_similarity($1, brand) > 0.2
			OR word_similarity($1, description) > 0.2
		ORDER BY score DESC, recall_date DESC, id
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TextHit
	for rows.Next() {
		var h domain.TextHit
		if err := rows.Scan(
			&h.Record.ID, &h.Record.Agency, &h.Record.SourceNativeID,
			&h.Record.ProductName, &h.Record.Brand,
			&h.Record.UPC, &h.Record.Model, &h.Record.Lot, &h.Record.Serial,
			&h.Record.Hazard, &h.Record.Severity,
			&h.Record.Description, &h.Record.Remedy,
			&h.Record.RecallDate, &h.Record.Country, &h.Record.SourceURL,
			&h.Record.CreatedAt, &h.Record.UpdatedAt,
			&h.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// List pages with a dynamic WHERE and (recall_date, id) keyset so pages
// stay stable while ingestion inserts concurrently
func (s *pg) List(ctx context.Context, f domain.CompositeFilter, after AfterKey, limit int) ([]domain.RecallRecord, AfterKey, error) {
	var sb strings.Builder
	var args []any
	arg := func(v any) string { args = append(args, v); return fmt.Sprintf("$%d", len(args)) }

	sb.WriteString("SELECT " + recordColumns + "\nFROM recall_records\nWHERE 1=1\n")

	if f.Agency != "" {
		sb.WriteString("  AND agency = " + arg(f.Agency) + "\n")
	}
	if f.Country != "" {
		sb.WriteString("  AND country = " + arg(f.Country) + "\n")
	}
	if f.Category != "" {
		sb.WriteString("  AND hazard = " + arg(f.Category) + "\n")
	}
	if f.DateFrom != nil {
		sb.WriteString("  AND recall_date >= " + arg(*f.DateFrom) + "\n")
	}
	if f.DateTo != nil {
		sb.WriteString("  AND recall_date <= " + arg(*f.DateTo) + "\n")
	}

	// keyset only when a position is set (avoid ''::uuid on first page)
	if after.ID != "" {
		sb.WriteString("  AND (recall_date, id) > (" + arg(after.Date) + ", " + arg(after.ID) + "::uuid)\n")
	}

	sb.WriteString("ORDER BY recall_date, id\nLIMIT " + arg(limit))

	rows, err := s.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, AfterKey{}, err
	}
	defer rows.Close()

	out := make([]domain.RecallRecord, 0, limit)
	var last AfterKey
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, AfterKey{}, err
		}
		out = append(out, r)
		last = AfterKey{Date: r.RecallDate, ID: r.ID}
	}
	return out, last, rows.Err()
}

// FetchSince loads the reconciliation window
func (s *pg) FetchSince(ctx context.Context, since time.Time) ([]domain.RecallRecord, error) {
	var sb strings.Builder
	var args []any
	sb.WriteString("SELECT " + recordColumns + "\nFROM recall_records\n")
	if !since.IsZero() {
		args = append(args, since)
		sb.WriteString("WHERE recall_date >= $1\n")
	}
	sb.WriteString("ORDER BY recall_date, id")

	rows, err := s.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RecallRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
