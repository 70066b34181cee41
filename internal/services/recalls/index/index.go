// Package index is the in-process fuzzy lookup structure over canonical
// recall records: exact identifier maps plus trigram postings for text
// queries. Refresh is incremental per upserted record, never a rebuild, and
// readers always see the last committed state
package index

import (
	"sort"
	"strings"
	"sync"

	"recallwatch/internal/core/ident"
	"recallwatch/internal/core/similarity"
	"recallwatch/internal/core/textnorm"
	"recallwatch/internal/services/recalls/domain"
)

// floor below which a text hit is noise, not a result
const minTextScore = 0.25

type entry struct {
	rec      domain.RecallRecord
	key      string // normalized name+brand+description match key
	nameKey  string // normalized brand+name, scored separately
	trigrams map[string]struct{}
}

// Index is safe for concurrent use; one writer (the ingestion pipeline)
// and many readers (the query path)
type Index struct {
	mu   sync.RWMutex
	norm *textnorm.Normalizer

	entries  map[string]*entry                          // record id -> entry
	idents   map[ident.Kind]map[string]map[string]bool  // kind -> value -> id set
	postings map[string]map[string]bool                 // trigram -> id set
}

// New constructs an empty index
func New() *Index {
	x := &Index{
		norm:     textnorm.New(),
		entries:  make(map[string]*entry),
		idents:   make(map[ident.Kind]map[string]map[string]bool),
		postings: make(map[string]map[string]bool),
	}
	for _, k := range []ident.Kind{ident.KindUPC, ident.KindModel, ident.KindLot, ident.KindSerial} {
		x.idents[k] = make(map[string]map[string]bool)
	}
	return x
}

// Len reports how many records are indexed
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Upsert indexes records incrementally, replacing any previous state for
// the same record id
func (x *Index) Upsert(recs ...domain.RecallRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i := range recs {
		r := recs[i]
		if r.ID == "" {
			continue
		}
		x.evictLocked(r.ID)

		key := x.norm.Key(strings.Join([]string{r.ProductName, r.Brand, r.Description}, " "))
		e := &entry{
			rec:      r,
			key:      key,
			nameKey:  x.norm.Key(strings.TrimSpace(r.Brand + " " + r.ProductName)),
			trigrams: similarity.Trigrams(key),
		}
		x.entries[r.ID] = e

		for g := range e.trigrams {
			set := x.postings[g]
			if set == nil {
				set = make(map[string]bool)
				x.postings[g] = set
			}
			set[r.ID] = true
		}
		for _, k := range []ident.Kind{ident.KindUPC, ident.KindModel, ident.KindLot, ident.KindSerial} {
			if v := r.Identifier(k); v != "" {
				set := x.idents[k][v]
				if set == nil {
					set = make(map[string]bool)
					x.idents[k][v] = set
				}
				set[r.ID] = true
			}
		}
	}
}

func (x *Index) evictLocked(id string) {
	e, ok := x.entries[id]
	if !ok {
		return
	}
	for g := range e.trigrams {
		delete(x.postings[g], id)
		if len(x.postings[g]) == 0 {
			delete(x.postings, g)
		}
	}
	for _, k := range []ident.Kind{ident.KindUPC, ident.KindModel, ident.KindLot, ident.KindSerial} {
		if v := e.rec.Identifier(k); v != "" {
			delete(x.idents[k][v], id)
			if len(x.idents[k][v]) == 0 {
				delete(x.idents[k], v)
			}
		}
	}
	delete(x.entries, id)
}

// ByIdentifier is an exact map lookup; similar identifiers never bleed in
func (x *Index) ByIdentifier(kind ident.Kind, value string) []domain.RecallRecord {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := x.idents[kind][value]
	if len(ids) == 0 {
		return nil
	}
	out := make([]domain.RecallRecord, 0, len(ids))
	for id := range ids {
		out = append(out, x.entries[id].rec)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// ByText gathers candidates through the trigram postings and ranks them by
// a blend of query containment (partial terms) and whole-string similarity
// against brand+name (misspellings)
func (x *Index) ByText(query string, limit int) []domain.TextHit {
	if limit <= 0 {
		limit = 20
	}
	qKey := x.norm.Key(query)
	qGrams := similarity.Trigrams(qKey)
	if len(qGrams) == 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	// candidate ids and how many query trigrams each matched
	matched := make(map[string]int)
	for g := range qGrams {
		for id := range x.postings[g] {
			matched[id]++
		}
	}

	hits := make([]domain.TextHit, 0, len(matched))
	for id, m := range matched {
		e := x.entries[id]
		containment := float64(m) / float64(len(qGrams))
		score := similarity.Score(qKey, e.nameKey)
		if containment > score {
			score = containment
		}
		if score < minTextScore {
			continue
		}
		hits = append(hits, domain.TextHit{Record: e.rec, Score: score})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Record.ID < hits[b].Record.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
