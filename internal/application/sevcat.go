package application

import (
	"cmp"
	"slices"
)

// SevCatRow is one severity/category combination with its counts.
type SevCatRow struct {
	Severity string         `json:"severity"`
	Category string         `json:"category"`
	Total    int            `json:"total"`
	BySystem map[string]int `json:"bySystem"`
}

// SevCatTable lists severity/category counts. Systems are ordered by their
// total count, highest first; rows by severity, then by total count.
type SevCatTable struct {
	Systems []string    `json:"systems"`
	Rows    []SevCatRow `json:"rows"`
}

// BuildSevCatTable flattens the accumulated severity/category counts.
func BuildSevCatTable(stats *Stats) *SevCatTable {
	perSystem := make(map[string]int)
	t := &SevCatTable{}
	for sev, cats := range stats.SevCat {
		for cat, c := range cats {
			for sys, n := range c.BySystem {
				perSystem[sys] += n
			}
			t.Rows = append(t.Rows, SevCatRow{Severity: sev, Category: cat, Total: c.Total, BySystem: c.BySystem})
		}
	}
	for sys := range perSystem {
		t.Systems = append(t.Systems, sys)
	}
	slices.SortFunc(t.Systems, func(a, b string) int {
		if c := cmp.Compare(perSystem[b], perSystem[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	slices.SortFunc(t.Rows, func(a, b SevCatRow) int {
		if c := cmp.Compare(a.Severity, b.Severity); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return t
}
