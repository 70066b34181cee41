// Package textnorm produces deterministic match keys for product text
// Pipeline order
// 1 UTF-8 repair drop invalid bytes
// 2 NFD decomposition so combining marks are separable
// 3 Remove combining marks and zero-width format chars
// 4 Case folding
// 5 Width fold fullwidth to ASCII then NFKC recomposition
// 6 Punctuation folded to spaces
// 7 Collapse whitespace to single spaces and trim
package textnorm

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Normalizer is concurrency safe when used with the pool below
type Normalizer struct{}

// pool of fresh transformer chains
var chainPool = sync.Pool{
	New: func() any {
		// order matters and mirrors the documented pipeline; decomposing
		// first keeps NFKC from hiding marks inside precomposed runes
		return transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)), // strip combining marks
			runes.Remove(runes.In(unicode.Cf)), // strip format chars ZWJ ZWNJ FEFF etc
			cases.Fold(),                       // unicode case folding
			width.Fold,                         // map fullwidth forms to ASCII
			norm.NFKC,                          // recompose what remains
		)
	},
}

// New constructs a Normalizer
func New() *Normalizer { return &Normalizer{} }

// Key returns the normalized match key of s following the pipeline described above.
// Digits are kept verbatim since model numbers and UPC fragments are significant
func (n *Normalizer) Key(s string) string {
	if s == "" {
		return ""
	}

	// 1 repair UTF-8 drop invalid bytes
	s = strings.ToValidUTF8(s, "")

	// 2-5 transform via pooled chain then reset and return it
	tr := chainPool.Get().(transform.Transformer)
	ns, _, _ := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)

	// 6 punctuation to spaces
	ns = foldPunct(ns)

	// 7 collapse whitespace and trim
	ns = collapseSpaces(ns)

	return ns
}

// foldPunct replaces punctuation and symbol runes with spaces so that
// "Model X-200/B" and "Model X 200 B" produce the same key
func foldPunct(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseSpaces converts whitespace runs to a single ASCII space and trims the edges
func collapseSpaces(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inWS := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWS = true
			continue
		}
		if inWS && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inWS = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
