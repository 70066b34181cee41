// Package normalizer maps agency-native raw records to canonical recall
// records. Pure and deterministic: the same raw input always yields the same
// canonical output, which is what makes re-ingestion idempotent upstream
package normalizer

import (
	"strings"
	"time"

	"recallwatch/internal/core/classify"
	"recallwatch/internal/core/ident"

	"recallwatch/internal/adapters/sources"
	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/services/recalls/domain"
)

// fallbackDateFormats is tried after the agency-declared layouts.
// Order matters: unambiguous layouts first
var fallbackDateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"20060102",
	"Jan 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
	"01/02/2006",
	"02/01/2006",
}

// Normalizer converts RawRecallRecord to domain.RecallRecord
type Normalizer struct {
	classifier *classify.Classifier
}

// New constructs a Normalizer
func New() *Normalizer {
	return &Normalizer{classifier: classify.New()}
}

// Normalize maps one raw record. A Validation error means this record is
// rejected; the caller counts it and moves on, siblings are unaffected
func (n *Normalizer) Normalize(raw sources.RawRecallRecord) (domain.RecallRecord, error) {
	agency := strings.TrimSpace(raw.Agency)
	nativeID := strings.TrimSpace(raw.SourceNativeID)
	if agency == "" || nativeID == "" {
		return domain.RecallRecord{}, perr.New(perr.ErrorCodeValidation, "record missing agency or source-native id")
	}

	name := strings.TrimSpace(raw.ProductName)
	if name == "" {
		name = strings.TrimSpace(raw.Title)
	}
	if name == "" {
		return domain.RecallRecord{}, perr.Newf(perr.ErrorCodeValidation, "record %s/%s has no product name", agency, nativeID)
	}

	date, err := parseDate(raw.RawDate, raw.DateFormats)
	if err != nil {
		return domain.RecallRecord{}, perr.Wrapf(err, perr.ErrorCodeValidation, "record %s/%s has unparseable date %q", agency, nativeID, raw.RawDate)
	}

	rec := domain.RecallRecord{
		Agency:         agency,
		SourceNativeID: nativeID,
		ProductName:    name,
		Brand:          strings.TrimSpace(raw.Brand),
		Description:    strings.TrimSpace(raw.HazardText),
		Remedy:         strings.TrimSpace(raw.Remedy),
		RecallDate:     date,
		Country:        normalizeCountry(raw.Country),
		SourceURL:      strings.TrimSpace(raw.SourceURL),
	}

	// malformed identifiers become null, never a rejection; the recall is
	// still actionable by name or model alone
	if v, ok := ident.UPC(raw.UPC); ok {
		rec.UPC = &v
	}
	if v, ok := ident.Code(raw.Model); ok {
		rec.Model = &v
	}
	if v, ok := ident.Code(raw.Lot); ok {
		rec.Lot = &v
	}
	if v, ok := ident.Code(raw.Serial); ok {
		rec.Serial = &v
	}

	cls := n.classifier.Classify(raw.Title, raw.HazardText)
	rec.Hazard = cls.Hazard
	rec.Severity = cls.Severity

	return rec, nil
}

// parseDate tries the agency-declared layouts first, then the common set.
// Dates are normalized to UTC midnight, only the day matters downstream
func parseDate(raw string, declared []string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, perr.New(perr.ErrorCodeValidation, "empty date")
	}
	for _, layout := range declared {
		if t, err := time.Parse(layout, raw); err == nil {
			return midnightUTC(t), nil
		}
	}
	for _, layout := range fallbackDateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return midnightUTC(t), nil
		}
	}
	return time.Time{}, perr.Newf(perr.ErrorCodeValidation, "no layout matched %q", raw)
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// normalizeCountry upper-cases the code; unknown stays as provided
func normalizeCountry(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
