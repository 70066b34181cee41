// Package repo persists dedup group membership in Postgres
package repo

import (
	"context"
	"strings"

	"recallwatch/internal/modkit/repokit"
	"recallwatch/internal/services/dedup/domain"
)

type binder struct{}

// NewPG constructs a repo binder for Postgres
func NewPG() repokit.Binder[domain.StorageRepo] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) domain.StorageRepo { return &pg{q: q} }

type pg struct{ q repokit.Queryer }

// ReplaceGroups rewrites membership for the affected records. Old groups
// overlapping the new member sets are dropped first so a record never
// appears in two groups
func (s *pg) ReplaceGroups(ctx context.Context, groups []domain.Group) error {
	if len(groups) == 0 {
		return nil
	}

	var touched []string
	for _, g := range groups {
		touched = append(touched, g.MemberIDs...)
	}
	if _, err := s.q.Exec(ctx, `
		DELETE FROM dedup_groups
		WHERE member_ids && $1::uuid[]
	`, touched); err != nil {
		return err
	}

	for _, g := range groups {
		if _, err := s.q.Exec(ctx, `
			INSERT INTO dedup_groups (id, canonical_record_id, member_ids, confidence)
			VALUES ($1::uuid, $2::uuid, $3::uuid[], $4)
			ON CONFLICT (id) DO UPDATE SET
				canonical_record_id = EXCLUDED.canonical_record_id,
				member_ids          = EXCLUDED.member_ids,
				confidence          = EXCLUDED.confidence,
				updated_at          = now()
		`, g.ID, g.CanonicalRecordID, g.MemberIDs, g.Confidence); err != nil {
			return err
		}
	}
	return nil
}

// GroupForRecord finds the group containing recordID
func (s *pg) GroupForRecord(ctx context.Context, recordID string) (domain.Group, bool, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id::text, canonical_record_id::text, member_ids::text[], confidence
		FROM dedup_groups
		WHERE member_ids @> ARRAY[$1]::uuid[]
		LIMIT 1
	`, recordID)

	var g domain.Group
	if err := row.Scan(&g.ID, &g.CanonicalRecordID, &g.MemberIDs, &g.Confidence); err != nil {
		// seam hides the driver, match the sentinel text
		if strings.Contains(err.Error(), "no rows") {
			return domain.Group{}, false, nil
		}
		return domain.Group{}, false, err
	}
	return g, true, nil
}
