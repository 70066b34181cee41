// Package repo persists ingestion runs in Postgres
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"recallwatch/internal/modkit/repokit"
	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/services/ingest/domain"
)

type binder struct{}

// NewPG constructs a repo binder for Postgres
func NewPG() repokit.Binder[domain.StorageRepo] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) domain.StorageRepo { return &pg{q: q} }

type pg struct{ q repokit.Queryer }

func (s *pg) Create(ctx context.Context, run domain.Run) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO ingestion_runs (id, mode, agency_filter, status, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5)
	`, run.ID, string(run.Mode), run.AgencyFilter, string(run.Status), run.CreatedAt)
	if err != nil {
		return perr.FromPostgres(err, "run create failed")
	}
	return nil
}

func (s *pg) MarkRunning(ctx context.Context, id string, at time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE ingestion_runs
		SET status = 'running', started_at = $2
		WHERE id = $1::uuid AND status = 'queued'
	`, id, at)
	if err != nil {
		return perr.FromPostgres(err, "run transition failed")
	}
	if tag.RowsAffected() == 0 {
		return perr.Newf(perr.ErrorCodeConflict, "run %s is not queued", id)
	}
	return nil
}

// Finish sets the terminal state exactly once; terminal runs are immutable
func (s *pg) Finish(ctx context.Context, id string, status domain.RunStatus, outcomes map[string]domain.AgencyOutcome, errText string, at time.Time) error {
	if !status.Terminal() {
		return perr.Newf(perr.ErrorCodeInvalidArgument, "finish with non-terminal status %s", status)
	}
	blob, err := json.Marshal(outcomes)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "outcomes marshal failed")
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE ingestion_runs
		SET status = $2, outcomes = $3::jsonb, error = $4, finished_at = $5
		WHERE id = $1::uuid AND status IN ('queued', 'running')
	`, id, string(status), blob, errText, at)
	if err != nil {
		return perr.FromPostgres(err, "run finish failed")
	}
	if tag.RowsAffected() == 0 {
		return perr.Newf(perr.ErrorCodeConflict, "run %s already terminal", id)
	}
	return nil
}

const runColumns = `
	id::text, mode, agency_filter, status,
	COALESCE(outcomes, '{}'::jsonb), COALESCE(error, ''),
	created_at, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (domain.Run, error) {
	var r domain.Run
	var outcomes []byte
	err := row.Scan(
		&r.ID, &r.Mode, &r.AgencyFilter, &r.Status,
		&outcomes, &r.Error,
		&r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return r, err
	}
	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &r.Outcomes); err != nil {
			return r, perr.Wrap(err, perr.ErrorCodeUnknown, "outcomes unmarshal failed")
		}
	}
	return r, nil
}

func (s *pg) Get(ctx context.Context, id string) (domain.Run, bool, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM ingestion_runs
		WHERE id = $1::uuid
	`, id)
	r, err := scanRun(row)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return domain.Run{}, false, nil
		}
		return domain.Run{}, false, err
	}
	return r, true, nil
}

// List pages newest first with a (created_at, id) keyset
func (s *pg) List(ctx context.Context, f domain.ListFilter, limit int) ([]domain.Run, error) {
	var sb strings.Builder
	var args []any
	arg := func(v any) string { args = append(args, v); return fmt.Sprintf("$%d", len(args)) }

	sb.WriteString("SELECT " + runColumns + "\nFROM ingestion_runs\nWHERE 1=1\n")
	if f.Status != "" {
		sb.WriteString("  AND status = " + arg(string(f.Status)) + "\n")
	}
	if f.Cursor != "" {
		// cursor carries the previous page's last (created_at, id)
		parts := strings.SplitN(f.Cursor, "|", 2)
		if len(parts) != 2 {
			return nil, perr.New(perr.ErrorCodeInvalidArgument, "bad cursor")
		}
		ts, err := time.Parse(time.RFC3339Nano, parts[0])
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "bad cursor")
		}
		sb.WriteString("  AND (created_at, id) < (" + arg(ts) + ", " + arg(parts[1]) + "::uuid)\n")
	}
	sb.WriteString("ORDER BY created_at DESC, id DESC\nLIMIT " + arg(limit))

	rows, err := s.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastCursors reads the newest run that persisted data and pulls each
// agency's last_cursor out of its outcomes
func (s *pg) LastCursors(ctx context.Context) (map[string]string, error) {
	row := s.q.QueryRow(ctx, `
		SELECT COALESCE(outcomes, '{}'::jsonb)
		FROM ingestion_runs
		WHERE status IN ('succeeded', 'partial')
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil
		}
		return nil, err
	}
	var outcomes map[string]domain.AgencyOutcome
	if err := json.Unmarshal(blob, &outcomes); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "outcomes unmarshal failed")
	}
	cursors := make(map[string]string, len(outcomes))
	for agency, o := range outcomes {
		if o.Status == domain.AgencySucceeded && o.LastCursor != "" {
			cursors[agency] = o.LastCursor
		}
	}
	return cursors, nil
}
