package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-mqm/internal/domain"
)

func TestClause_Expression(t *testing.T) {
	tests := []struct {
		name    string
		clause  Clause
		want    string
		wantErr error
	}{
		{
			name:   "system severity and category",
			clause: Clause{Key: "System: sysA", Severity: "Major", Category: "Accuracy"},
			want:   `hasError(segment.sevcatsBySystem, "sysA", "Major/Accuracy")`,
		},
		{
			name:   "rater category only",
			clause: Clause{Key: "Rater:r1", Category: "Fluency"},
			want:   `hasError(segment.catsByRater, "r1", "Fluency")`,
		},
		{
			name:   "excluded severity",
			clause: Clause{Key: "System:sysB", Exclude: true, Severity: "Minor"},
			want:   `lacksError(segment.sevsBySystem, "sysB", "Minor")`,
		},
		{
			name:   "quotes are escaped",
			clause: Clause{Key: `System:a"b`, Category: "x"},
			want:   `hasError(segment.catsBySystem, "a\"b", "x")`,
		},
		{
			name:    "missing severity and category",
			clause:  Clause{Key: "System:sysA"},
			wantErr: ErrClauseIncomplete,
		},
		{
			name:    "bad key",
			clause:  Clause{Key: "Doc:D1", Category: "x"},
			wantErr: ErrClauseKey,
		},
		{
			name:    "empty name",
			clause:  Clause{Key: "Rater: ", Category: "x"},
			wantErr: ErrClauseKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.clause.Expression()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, tt.clause.Ready())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, tt.clause.Ready())
		})
	}
}

func TestAppendClause(t *testing.T) {
	c := Clause{Key: "System:A", Category: "Fluency"}

	got, err := AppendClause("", c, And)
	require.NoError(t, err)
	assert.Equal(t, `hasError(segment.catsBySystem, "A", "Fluency")`, got)

	got, err = AppendClause(`rater == "r1"`, c, Or)
	require.NoError(t, err)
	assert.Equal(t, `rater == "r1" || hasError(segment.catsBySystem, "A", "Fluency")`, got)
}

func TestClauseBuilder(t *testing.T) {
	b := NewClauseBuilder([]string{"sysA", "sysB"}, []string{"rater1"})

	assert.Equal(t, []string{"System: sysA", "System: sysB", "Rater: rater1"}, b.Keys())

	got, err := b.Append("", Clause{Key: "Rater: rater1", Severity: "Minor"}, And)
	require.NoError(t, err)
	assert.Equal(t, `hasError(segment.sevsByRater, "rater1", "Minor")`, got)

	_, err = b.Append("", Clause{Key: "System: sysC", Severity: "Minor"}, And)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "sysA"?`)

	_, err = b.Append("", Clause{Key: "System: completely-different", Severity: "Minor"}, And)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestBindings(t *testing.T) {
	r := domain.NewRecord([]string{
		"sysA", "doc1", "7", "x12", "r1", "src <v>err</v>", "tgt", "Accuracy", "Major",
		`{"note":"check","timestamp":5,"timing":{"click":{"count":2,"timeMS":30}}}`,
	})
	seg := domain.NewSegmentAggregate()
	seg.Add(r)

	b := Bindings(r, seg)
	assert.Equal(t, 7, b["docSegId"], "canonical integer ids bind as numbers")
	assert.Equal(t, "x12", b["globalSegId"])
	assert.Equal(t, `src <span class="mqm-major">err</span>`, b["source"])

	meta := b["metadata"].(map[string]any)
	assert.Equal(t, "check", meta["note"])
	assert.Equal(t, int64(5), meta["timestamp"])
	click := meta["timing"].(map[string]any)["click"].(map[string]any)
	assert.Equal(t, 2, click["count"])

	sides := b["segment"].(map[string]any)
	assert.Equal(t, []string{"Major/Accuracy"}, sides["sevcatsBySystem"].(map[string][]string)["sysA"])

	empty := Bindings(r, nil)
	assert.Empty(t, empty["segment"].(map[string]any)["catsBySystem"])
}

func TestViewingConstraint_NilAllowsEverything(t *testing.T) {
	var c *ViewingConstraint
	assert.True(t, c.Allows(domain.SegmentKey{Doc: "any"}))
}
