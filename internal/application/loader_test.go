package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-mqm/internal/domain"
	"github.com/ahrav/go-mqm/internal/ports"
)

func TestLoader_Load(t *testing.T) {
	row1 := tsvLine("A", "D1", "1", "1", "r1", "src", "tgt", "Accuracy", "Major")
	row2 := tsvLine("B", "D1", "1", "1", "r1", "src", "tgt", "Fluency", "Minor")
	noNewline := "C\tD1\t1\t1\tr1\tsrc\ttgt\tStyle\tMinor"

	tests := []struct {
		name          string
		sources       []ports.Source
		wantSystems   []string
		wantRowErrs   int
		wantSourceErr []string
		wantErr       error
	}{
		{
			name:        "sources joined in argument order",
			sources:     []ports.Source{memSource{name: "a", text: row1}, memSource{name: "b", text: row2}},
			wantSystems: []string{"A", "B"},
		},
		{
			name:        "missing trailing newline does not merge rows",
			sources:     []ports.Source{memSource{name: "c", text: noNewline}, memSource{name: "a", text: row1}},
			wantSystems: []string{"C", "A"},
		},
		{
			name: "failing source is reported and skipped",
			sources: []ports.Source{
				memSource{name: "a", text: row1},
				memSource{name: "down", err: ports.ErrSourceUnavailable},
			},
			wantSystems:   []string{"A"},
			wantSourceErr: []string{"down"},
		},
		{
			name:        "malformed rows are collected",
			sources:     []ports.Source{memSource{name: "a", text: row1 + "too\tshort\n"}},
			wantSystems: []string{"A"},
			wantRowErrs: 1,
		},
		{
			name:    "no sources",
			wantErr: ErrNoSources,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLoader(lineParser{}, 2, nil)
			res, err := l.Load(context.Background(), tt.sources...)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)

			var systems []string
			for _, r := range res.Records {
				systems = append(systems, r.System)
			}
			assert.Equal(t, tt.wantSystems, systems)
			assert.Len(t, res.RowErrors, tt.wantRowErrs)
			for _, rowErr := range res.RowErrors {
				assert.ErrorIs(t, rowErr, domain.ErrMalformedRow)
			}

			var failed []string
			for _, e := range res.SourceErrors {
				var sfe *ports.SourceFetchError
				require.ErrorAs(t, e, &sfe)
				failed = append(failed, sfe.Source)
			}
			assert.Equal(t, tt.wantSourceErr, failed)
		})
	}
}

func TestLoader_AllSourcesFailing(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewLoader(lineParser{}, 1, nil).Load(context.Background(),
		memSource{name: "x", err: boom},
		memSource{name: "y", err: ports.NewSourceFetchError("y", ports.ErrTimeout)},
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ports.ErrTimeout)
	var sfe *ports.SourceFetchError
	require.ErrorAs(t, err, &sfe)
	assert.Equal(t, "x", sfe.Source)
}

func TestLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(lineParser{}, 0, nil).Load(ctx, memSource{name: "a", text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
