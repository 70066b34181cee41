// Package domain defines dedup group types and ports
package domain

import (
	"context"

	recallsdom "recallwatch/internal/services/recalls/domain"
)

// Group is a set of recall records judged to describe one real-world
// event. Every record belongs to at most one group; an unmatched record
// forms a singleton group with itself as canonical
type Group struct {
	ID                string   `json:"id"`
	CanonicalRecordID string   `json:"canonical_record_id"`
	MemberIDs         []string `json:"member_ids"`
	Confidence        float64  `json:"confidence"`
}

// ReconcilerPort groups canonical records. Deterministic and idempotent:
// the same record set always produces the same groups and canonical picks
type ReconcilerPort interface {
	Reconcile(recs []recallsdom.RecallRecord) ([]Group, error)
}

// StorageRepo persists group membership. Only the deduplicator writes here
type StorageRepo interface {
	// ReplaceGroups drops any existing groups touching the given member
	// records and writes the new grouping
	ReplaceGroups(ctx context.Context, groups []Group) error

	// GroupForRecord returns the group containing recordID, ok=false when
	// the record is ungrouped
	GroupForRecord(ctx context.Context, recordID string) (Group, bool, error)
}
