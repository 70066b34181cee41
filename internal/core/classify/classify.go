// Package classify derives hazard category and severity for a recall record
// from its free-text fields. Rule based keyword tables, no model, fully
// deterministic so re-ingestion classifies identically
package classify

import (
	"strings"

	"recallwatch/internal/core/textnorm"
)

// Hazard is the canonical hazard category enum
type Hazard string

// Hazard categories in priority order, first matching keyword set wins
const (
	HazardFireBurn   Hazard = "fire_burn"
	HazardChoking    Hazard = "choking"
	HazardLaceration Hazard = "laceration"
	HazardChemical   Hazard = "chemical"
	HazardElectrical Hazard = "electrical"
	HazardStructural Hazard = "structural"
	HazardOther      Hazard = "other"
)

// Severity is the derived severity enum
type Severity string

// Severity levels
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// hazardTable is evaluated in order; the first category with any keyword hit
// is assigned. Keywords are matched against normalized tokens, exact or as a
// prefix for stems of four letters or more (burn matches burns and burned)
var hazardTable = []struct {
	cat Hazard
	kws []string
}{
	{HazardFireBurn, []string{"fire", "burn", "flame", "flammable", "scald", "overheat", "ignite", "combust"}},
	{HazardChoking, []string{"choke", "choking", "suffocat", "strangl", "asphyxiat", "swallow", "ingest"}},
	{HazardLaceration, []string{"lacerat", "cut", "sharp", "sever", "amputat", "blade", "puncture"}},
	{HazardChemical, []string{"chemical", "lead", "toxic", "poison", "carcinogen", "benzene", "salmonella", "listeria", "bacteria", "mold"}},
	{HazardElectrical, []string{"shock", "electrocut", "electrical", "voltage", "wiring", "battery"}},
	{HazardStructural, []string{"collapse", "detach", "tip", "crack", "fracture", "unstable", "instability", "breakage"}},
}

// severityTable maps keyword hits to levels, highest first.
// The critical row is also the override set: a hit there wins outright
var severityTable = []struct {
	level Severity
	kws   []string
}{
	{SeverityCritical, []string{"death", "fatalit", "fatal", "electrocut"}},
	{SeverityHigh, []string{"fire", "burn", "choke", "choking", "suffocat", "strangl", "asphyxiat", "poison", "toxic", "lead", "amputat", "shock"}},
	{SeverityMedium, []string{"lacerat", "cut", "injur", "fall", "fracture", "bruise", "puncture"}},
}

// Classifier tokenizes record text through the shared normalization pipeline
type Classifier struct {
	norm *textnorm.Normalizer
}

// New constructs a Classifier
func New() *Classifier { return &Classifier{norm: textnorm.New()} }

// Result bundles both derived fields
type Result struct {
	Hazard   Hazard
	Severity Severity
}

// Classify derives hazard category and severity from title and description.
// Category: first keyword set in priority order with a hit, else other.
// Severity: highest table row with a hit, else low. Fatality wording always
// classifies critical regardless of other matches
func (c *Classifier) Classify(title, description string) Result {
	tokens := strings.Fields(c.norm.Key(title + " " + description))

	out := Result{Hazard: HazardOther, Severity: SeverityLow}
	for _, row := range hazardTable {
		if anyHit(tokens, row.kws) {
			out.Hazard = row.cat
			break
		}
	}
	for _, row := range severityTable {
		if anyHit(tokens, row.kws) {
			out.Severity = row.level
			break
		}
	}
	return out
}

func anyHit(tokens, kws []string) bool {
	for _, tok := range tokens {
		for _, kw := range kws {
			if tok == kw {
				return true
			}
			if len(kw) >= 4 && strings.HasPrefix(tok, kw) {
				return true
			}
		}
	}
	return false
}
