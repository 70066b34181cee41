// Package service implements recall reconciliation: grouping canonical
// records that describe the same real-world recall across sources and runs
package service

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"recallwatch/internal/core/similarity"
	"recallwatch/internal/core/textnorm"
	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/services/dedup/domain"
	recallsdom "recallwatch/internal/services/recalls/domain"
)

const (
	// defaultThreshold is the fuzzy match cutoff on brand+name similarity
	defaultThreshold = 0.82

	// dateWindow bounds how far apart two recall dates may be for a fuzzy
	// match to count as the same event
	dateWindow = 30 * 24 * time.Hour
)

// Config holds reconciliation tuning
type Config struct {
	Threshold  float64       // <=0 -> 0.82
	DateWindow time.Duration // <=0 -> 30 days
}

// Service implements domain.ReconcilerPort
type Service struct {
	cfg  Config
	norm *textnorm.Normalizer
}

// New constructs the deduplicator
func New(cfg Config) *Service {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.DateWindow <= 0 {
		cfg.DateWindow = dateWindow
	}
	return &Service{cfg: cfg, norm: textnorm.New()}
}

// matchKey precomputes the comparable view of one record
type matchKey struct {
	key      string
	trigrams map[string]struct{}
	country  string
	date     time.Time
}

// Reconcile groups records by three candidate rules:
// same UPC, same (agency, source-native id), or fuzzy brand+name similarity
// above the threshold within the date window and country. The first two are
// authoritative and short-circuit fuzzy evaluation. Connected components
// resolve via union-find, so transitive chains collapse into one group.
// Pure function of its input; feeding the same set twice yields identical
// groups, member order and canonical picks
func (s *Service) Reconcile(recs []recallsdom.RecallRecord) ([]domain.Group, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	for i := range recs {
		if recs[i].ID == "" {
			return nil, perr.Newf(perr.ErrorCodeConflict, "reconcile: record %s/%s has no id", recs[i].Agency, recs[i].SourceNativeID)
		}
	}

	// deterministic processing order regardless of caller ordering
	idx := make([]int, len(recs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return recs[idx[a]].ID < recs[idx[b]].ID })

	uf := newUnionFind(len(recs))

	// confidence per root: 1.0 until a fuzzy edge joins the set, then the
	// weakest edge that formed the component
	conf := make([]float64, len(recs))
	for i := range conf {
		conf[i] = 1.0
	}
	unionWith := func(a, b int, score float64) {
		ca, cb := conf[uf.find(a)], conf[uf.find(b)]
		uf.union(a, b)
		c := min3(ca, cb, score)
		conf[uf.find(a)] = c
	}

	// rule (a): exact UPC, rule (b): same agency + native id
	byUPC := map[string]int{}
	byNative := map[string]int{}
	for _, i := range idx {
		r := &recs[i]
		if r.UPC != nil && *r.UPC != "" {
			if j, ok := byUPC[*r.UPC]; ok {
				unionWith(i, j, 1.0)
			} else {
				byUPC[*r.UPC] = i
			}
		}
		nk := r.Agency + "\x00" + r.SourceNativeID
		if j, ok := byNative[nk]; ok {
			unionWith(i, j, 1.0)
		} else {
			byNative[nk] = i
		}
	}

	// rule (c): fuzzy brand+name within country and date window
	keys := make([]matchKey, len(recs))
	for i := range recs {
		k := s.norm.Key(strings.TrimSpace(recs[i].Brand + " " + recs[i].ProductName))
		keys[i] = matchKey{
			key:      k,
			trigrams: similarity.Trigrams(k),
			country:  recs[i].Country,
			date:     recs[i].RecallDate,
		}
	}
	for ai := 0; ai < len(idx); ai++ {
		for bi := ai + 1; bi < len(idx); bi++ {
			a, b := idx[ai], idx[bi]
			if uf.same(a, b) {
				continue // authoritative rules already joined them
			}
			if keys[a].country != keys[b].country {
				continue
			}
			if absDur(keys[a].date.Sub(keys[b].date)) > s.cfg.DateWindow {
				continue
			}
			// cheap set overlap first, exact blend only for candidates
			if similarity.TrigramSetSimilarity(keys[a].trigrams, keys[b].trigrams) < s.cfg.Threshold/2 {
				continue
			}
			if score := similarity.Score(keys[a].key, keys[b].key); score >= s.cfg.Threshold {
				unionWith(a, b, score)
			}
		}
	}

	// collect components in deterministic order
	members := map[int][]int{}
	for _, i := range idx {
		root := uf.find(i)
		members[root] = append(members[root], i)
	}
	roots := make([]int, 0, len(members))
	for r := range members {
		roots = append(roots, r)
	}
	sort.Slice(roots, func(a, b int) bool { return recs[roots[a]].ID < recs[roots[b]].ID })

	groups := make([]domain.Group, 0, len(roots))
	for _, root := range roots {
		ids := make([]string, 0, len(members[root]))
		for _, i := range members[root] {
			ids = append(ids, recs[i].ID)
		}
		sort.Strings(ids)

		g := domain.Group{
			ID:                groupID(ids),
			CanonicalRecordID: recs[pickCanonical(recs, members[root])].ID,
			MemberIDs:         ids,
			Confidence:        conf[root],
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// pickCanonical prefers the most complete record, then the earliest recall
// date, then the lowest internal id
func pickCanonical(recs []recallsdom.RecallRecord, members []int) int {
	best := members[0]
	for _, i := range members[1:] {
		bi, bb := &recs[i], &recs[best]
		ni, nb := bi.NonNullFields(), bb.NonNullFields()
		switch {
		case ni > nb:
			best = i
		case ni == nb && bi.RecallDate.Before(bb.RecallDate):
			best = i
		case ni == nb && bi.RecallDate.Equal(bb.RecallDate) && bi.ID < bb.ID:
			best = i
		}
	}
	return best
}

// groupID derives a stable UUID from the sorted member set so re-running
// reconciliation over the same records keeps group identity
func groupID(sortedMemberIDs []string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(sortedMemberIDs, "|"))).String()
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
