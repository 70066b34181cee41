// Package ident normalizes product identifiers (UPC, model, lot, serial)
package ident

import "strings"

// Kind enumerates the identifier fields a record carries
type Kind string

// Identifier kinds accepted by lookups
const (
	KindUPC    Kind = "upc"
	KindModel  Kind = "model"
	KindLot    Kind = "lot"
	KindSerial Kind = "serial"
)

// ParseKind validates a client-supplied kind string
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindUPC:
		return KindUPC, true
	case KindModel:
		return KindModel, true
	case KindLot:
		return KindLot, true
	case KindSerial:
		return KindSerial, true
	}
	return "", false
}

// validUPCLengths: EAN-8, UPC-A, EAN-13, GTIN-14
var validUPCLengths = map[int]bool{8: true, 12: true, 13: true, 14: true}

// UPC strips every non-digit from raw and validates the remaining length.
// Returns ("", false) for out-of-range values; callers store null rather than
// rejecting the record, a recall is still actionable by name or model alone
func UPC(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			b.WriteByte(raw[i])
		}
	}
	digits := b.String()
	if !validUPCLengths[len(digits)] {
		return "", false
	}
	return digits, true
}

// Code trims model, lot and serial values. Returns ("", false) when nothing
// usable remains
func Code(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", false
	}
	return v, true
}

// Normalize applies the kind-appropriate rule to a raw value
func Normalize(kind Kind, raw string) (string, bool) {
	if kind == KindUPC {
		return UPC(raw)
	}
	return Code(raw)
}
