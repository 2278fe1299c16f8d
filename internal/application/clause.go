package application

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Clause key prefixes, as offered by the clause builder's key selector.
const (
	systemKeyPrefix = "System:"
	raterKeyPrefix  = "Rater:"
)

// Conjunction joins a clause to an existing expression.
type Conjunction string

const (
	And Conjunction = "&&"
	Or  Conjunction = "||"
)

var (
	// ErrClauseIncomplete indicates a clause without a key or without both
	// severity and category.
	ErrClauseIncomplete = errors.New("clause needs a key and a severity or category")

	// ErrClauseKey indicates a key that is neither "System:<name>" nor
	// "Rater:<name>".
	ErrClauseKey = errors.New("clause key must be System:<name> or Rater:<name>")
)

// Clause describes one segment-level condition: whether a system's (or a
// rater's) errors on the segment include or exclude a severity, a category,
// or a severity/category pair.
type Clause struct {
	// Key is "System:<name>" or "Rater:<name>".
	Key      string `json:"key"`
	Exclude  bool   `json:"exclude,omitempty"`
	Severity string `json:"severity,omitempty"`
	Category string `json:"category,omitempty"`
}

// Ready reports whether the clause is specific enough to be added.
func (c Clause) Ready() bool {
	_, _, err := c.parseKey()
	return err == nil && (c.Severity != "" || c.Category != "")
}

func (c Clause) parseKey() (side, name string, err error) {
	switch {
	case strings.HasPrefix(c.Key, systemKeyPrefix):
		side, name = "BySystem", strings.TrimPrefix(c.Key, systemKeyPrefix)
	case strings.HasPrefix(c.Key, raterKeyPrefix):
		side, name = "ByRater", strings.TrimPrefix(c.Key, raterKeyPrefix)
	default:
		return "", "", fmt.Errorf("%w: %q", ErrClauseKey, c.Key)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrClauseKey, c.Key)
	}
	return side, name, nil
}

// Expression renders the clause as a call to hasError or lacksError, for
// example hasError(segment.sevcatsBySystem, "sysA", "Major/Accuracy").
func (c Clause) Expression() (string, error) {
	side, name, err := c.parseKey()
	if err != nil {
		return "", err
	}
	var list, value string
	switch {
	case c.Severity != "" && c.Category != "":
		list, value = "segment.sevcats", c.Severity+"/"+c.Category
	case c.Category != "":
		list, value = "segment.cats", c.Category
	case c.Severity != "":
		list, value = "segment.sevs", c.Severity
	default:
		return "", ErrClauseIncomplete
	}
	fn := "hasError"
	if c.Exclude {
		fn = "lacksError"
	}
	return fmt.Sprintf("%s(%s%s, %s, %s)", fn, list, side, strconv.Quote(name), strconv.Quote(value)), nil
}

// AppendClause adds c to expr with op. An empty expr becomes the clause.
func AppendClause(expr string, c Clause, op Conjunction) (string, error) {
	frag, err := c.Expression()
	if err != nil {
		return "", err
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return frag, nil
	}
	return expr + " " + string(op) + " " + frag, nil
}

// ClauseBuilder validates clause keys against the systems and raters that
// are actually present in the data.
type ClauseBuilder struct {
	systems []string
	raters  []string
}

// NewClauseBuilder creates a builder for the given known names.
func NewClauseBuilder(systems, raters []string) *ClauseBuilder {
	return &ClauseBuilder{systems: systems, raters: raters}
}

// Keys lists every selectable clause key.
func (b *ClauseBuilder) Keys() []string {
	keys := make([]string, 0, len(b.systems)+len(b.raters))
	for _, s := range b.systems {
		keys = append(keys, systemKeyPrefix+" "+s)
	}
	for _, r := range b.raters {
		keys = append(keys, raterKeyPrefix+" "+r)
	}
	return keys
}

// Append validates c and adds it to expr. An unknown system or rater name
// is rejected with the closest known name as a suggestion.
func (b *ClauseBuilder) Append(expr string, c Clause, op Conjunction) (string, error) {
	side, name, err := c.parseKey()
	if err != nil {
		return "", err
	}
	known := b.raters
	if side == "BySystem" {
		known = b.systems
	}
	if !slices.Contains(known, name) {
		if s := closest(name, known); s != "" {
			return "", fmt.Errorf("unknown name %q in clause key (did you mean %q?)", name, s)
		}
		return "", fmt.Errorf("unknown name %q in clause key", name)
	}
	return AppendClause(expr, c, op)
}

// closest returns the candidate with the smallest edit distance to name,
// or "" when every candidate differs by more than half of name's length.
func closest(name string, candidates []string) string {
	best, bestDist := "", len(name)/2+1
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
