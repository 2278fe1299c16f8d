package application

import (
	"slices"

	"github.com/ahrav/go-mqm/internal/domain"
)

// MatrixCell is one system's score as judged by one rater.
type MatrixCell struct {
	Score   float64 `json:"score"`
	Present bool    `json:"present"`
	// OutOfOrder is set when this rater ranks the system against the
	// previous row's system in the opposite direction from all raters.
	OutOfOrder bool `json:"outOfOrder"`
}

// MatrixRow holds one system's scores.
type MatrixRow struct {
	System    string       `json:"system"`
	AllRaters float64      `json:"allRaters"`
	Cells     []MatrixCell `json:"cells"`
}

// SystemRaterMatrix cross-tabulates systems against raters. Rows and
// columns are ordered by overall score, best first.
type SystemRaterMatrix struct {
	Raters []string    `json:"raters"`
	Rows   []MatrixRow `json:"rows"`
}

// BuildSystemRaterMatrix computes the matrix from the accumulated stats.
func BuildSystemRaterMatrix(stats *Stats, unit domain.ScoringUnit) *SystemRaterMatrix {
	systems, sysScores := scoredNames(stats.BySystem, unit)
	raters, _ := scoredNames(stats.ByRater, unit)

	m := &SystemRaterMatrix{Raters: raters, Rows: make([]MatrixRow, 0, len(systems))}
	lastAll := 0.0
	lastForRater := make(map[string]float64, len(raters))
	for _, sys := range systems {
		all := sysScores[sys]
		row := MatrixRow{System: sys, AllRaters: all, Cells: make([]MatrixCell, len(raters))}
		for i, rater := range raters {
			idx, ok := stats.BySystemRater[sys][rater]
			if !ok {
				lastForRater[rater] = all
				continue
			}
			score := domain.Aggregate(idx.Segments(), unit).Score
			last := lastForRater[rater]
			row.Cells[i] = MatrixCell{
				Score:      score,
				Present:    true,
				OutOfOrder: (score < last && all > lastAll) || (score > last && all < lastAll),
			}
			lastForRater[rater] = score
		}
		lastAll = all
		m.Rows = append(m.Rows, row)
	}
	return m
}

// scoredNames returns the keys of indices ordered by aggregate score, with
// ties broken by name, and the scores themselves.
func scoredNames(indices map[string]*domain.StatsIndex, unit domain.ScoringUnit) ([]string, map[string]float64) {
	scores := make(map[string]float64, len(indices))
	names := make([]string, 0, len(indices))
	for name, idx := range indices {
		scores[name] = domain.Aggregate(idx.Segments(), unit).Score
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if scores[a] < scores[b] {
			return -1
		}
		if scores[a] > scores[b] {
			return 1
		}
		return domain.CompareIDs(a, b)
	})
	return names, scores
}
