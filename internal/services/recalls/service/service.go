// Package service contains the recalls query and persistence workflows.
// Reads prefer the in-process matcher index; the composite listing goes to
// Postgres for its keyset pagination
package service

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"recallwatch/internal/core/ident"
	"recallwatch/internal/modkit/repokit"
	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/platform/logger"
	"recallwatch/internal/services/recalls/domain"
	"recallwatch/internal/services/recalls/index"
	"recallwatch/internal/services/recalls/repo"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Service is the recalls contract: queries plus the ingestion write path
type Service interface {
	domain.ReaderPort
	domain.WriterPort

	// WarmIndex loads existing records into the matcher index at startup
	WarmIndex(ctx context.Context) error
}

// Svc implements Service
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[repo.Storage]
	idx    *index.Index
}

// New creates the recalls service with a fresh index
func New(db repokit.TxRunner, binder repokit.Binder[repo.Storage]) *Svc {
	if db == nil {
		panic("recalls.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("recalls.Service requires a non nil Repo binder")
	}
	return &Svc{db: db, binder: binder, idx: index.New()}
}

// WarmIndex bulk-loads the index from storage. Serving is degraded but
// correct before this finishes: identifier and text lookups just miss
func (s *Svc) WarmIndex(ctx context.Context) error {
	var recs []domain.RecallRecord
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var e error
		recs, e = s.binder.Bind(q).FetchSince(ctx, time.Time{})
		return e
	})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "index warm load failed")
	}
	s.idx.Upsert(recs...)
	logger.C(ctx).Info().Int("records", len(recs)).Msg("matcher index warmed")
	return nil
}

// ByIdentifier serves exact lookups from the index
func (s *Svc) ByIdentifier(ctx context.Context, kind ident.Kind, value string) ([]domain.RecallRecord, error) {
	norm, ok := ident.Normalize(kind, value)
	if !ok {
		return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "unusable %s value", kind)
	}
	return s.idx.ByIdentifier(kind, norm), nil
}

// ByText serves fuzzy search from the index
func (s *Svc) ByText(ctx context.Context, query string, limit int) ([]domain.TextHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, perr.New(perr.ErrorCodeInvalidArgument, "empty query")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return s.idx.ByText(query, limit), nil
}

// ByCompositeFilter pages records out of Postgres with a keyset cursor
func (s *Svc) ByCompositeFilter(ctx context.Context, f domain.CompositeFilter) (domain.RecordPage, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	after, err := decodeCursor(f.Cursor)
	if err != nil {
		return domain.RecordPage{}, err
	}

	var rows []domain.RecallRecord
	var last repo.AfterKey
	err = s.db.Tx(ctx, func(q repokit.Queryer) error {
		var e error
		rows, last, e = s.binder.Bind(q).List(ctx, f, after, limit)
		return e
	})
	if err != nil {
		return domain.RecordPage{}, err
	}

	page := domain.RecordPage{Records: rows}
	if len(rows) == limit {
		page.NextCursor = encodeCursor(last)
	}
	return page, nil
}

// UpsertBatch persists the batch and incrementally refreshes the index
// with the stored rows so queries see them without a rebuild
func (s *Svc) UpsertBatch(ctx context.Context, recs []domain.RecallRecord) ([]domain.RecallRecord, int, int, error) {
	if len(recs) == 0 {
		return nil, 0, 0, nil
	}
	var stored []domain.RecallRecord
	var inserted, updated int
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var e error
		stored, inserted, updated, e = s.binder.Bind(q).UpsertBatch(ctx, recs)
		return e
	})
	if err != nil {
		return nil, 0, 0, err
	}
	s.idx.Upsert(stored...)
	return stored, inserted, updated, nil
}

// cursor is "RFC3339|uuid" in url-safe base64; opaque to clients
func encodeCursor(k repo.AfterKey) string {
	if k.ID == "" {
		return ""
	}
	raw := k.Date.UTC().Format(time.RFC3339) + "|" + k.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(c string) (repo.AfterKey, error) {
	if c == "" {
		return repo.AfterKey{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return repo.AfterKey{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "bad cursor")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return repo.AfterKey{}, perr.New(perr.ErrorCodeInvalidArgument, "bad cursor")
	}
	ts, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return repo.AfterKey{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "bad cursor")
	}
	return repo.AfterKey{Date: ts, ID: parts[1]}, nil
}
