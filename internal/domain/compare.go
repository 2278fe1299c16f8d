package domain

import (
	"cmp"
	"slices"
	"strconv"
)

// ParseID returns the integer value of an identifier and true when the text
// is exactly the canonical decimal form of that integer. "007" and "7.0"
// are not integers under this rule.
func ParseID(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || strconv.Itoa(n) != s {
		return 0, false
	}
	return n, true
}

// CompareIDs orders identifiers numerically when both are integers and
// lexicographically when neither is. Integers sort before non-integers so
// that the order stays total on mixed inputs.
func CompareIDs(a, b string) int {
	na, aok := ParseID(a)
	nb, bok := ParseID(b)
	switch {
	case aok && bok:
		return cmp.Compare(na, nb)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

// SortKey holds the fields that define the canonical order. Aggregated score
// rows fill in only the fields they carry; missing fields compare equal.
type SortKey struct {
	GlobalSegID string
	Doc         string
	DocSegID    string
	System      string
	Rater       string
	Severity    string
	Category    string
}

// Compare orders two keys by globalSegId, doc, docSegId, system, rater,
// severity and category.
func (k SortKey) Compare(o SortKey) int {
	if c := CompareIDs(k.GlobalSegID, o.GlobalSegID); c != 0 {
		return c
	}
	if c := CompareIDs(k.Doc, o.Doc); c != 0 {
		return c
	}
	if c := CompareIDs(k.DocSegID, o.DocSegID); c != 0 {
		return c
	}
	if c := CompareIDs(k.System, o.System); c != 0 {
		return c
	}
	if c := CompareIDs(k.Rater, o.Rater); c != 0 {
		return c
	}
	if c := CompareIDs(k.Severity, o.Severity); c != 0 {
		return c
	}
	return CompareIDs(k.Category, o.Category)
}

// SortKey returns the record's position in the canonical order.
func (r Record) SortKey() SortKey {
	return SortKey{
		GlobalSegID: r.GlobalSegID,
		Doc:         r.Doc,
		DocSegID:    r.DocSegID,
		System:      r.System,
		Rater:       r.Rater,
		Severity:    r.Severity,
		Category:    r.Category,
	}
}

// SortRecords sorts records in place into the canonical order. The sort is
// stable, so records with equal keys keep their input order.
func SortRecords(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		return a.SortKey().Compare(b.SortKey())
	})
}
