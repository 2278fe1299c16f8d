// Package tsv reads and writes ratings in the tab-separated wire format.
package tsv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ahrav/go-mqm/internal/domain"
	"github.com/ahrav/go-mqm/internal/ports"
)

// Header is the column header line written at the top of new files.
const Header = "system\tdoc\tdocSegId\tglobalSegId\trater\tsource\ttarget\tcategory\tseverity\tmetadata"

// headerMarker identifies header lines. Concatenated files may repeat the
// header anywhere in the input.
const headerMarker = "system\tdoc\t"

// maxLineBytes bounds a single row; segments can be long documents.
const maxLineBytes = 16 << 20

// ctxCheckInterval is how many lines are parsed between cancellation checks.
const ctxCheckInterval = 1024

// Parser turns wire-format text into records. Blank lines and header lines
// are skipped; rows with too few fields are reported and skipped.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser. A nil logger uses slog.Default().
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse implements ports.Parser.
func (p *Parser) Parse(ctx context.Context, text string) ([]domain.Record, []error, error) {
	return p.ParseReader(ctx, strings.NewReader(text))
}

// ParseReader parses rows from r.
func (p *Parser) ParseReader(ctx context.Context, r io.Reader) ([]domain.Record, []error, error) {
	var (
		records []domain.Record
		rowErrs []error
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		if line%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if strings.Contains(strings.ToLower(text), headerMarker) {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < domain.MinRowFields {
			err := domain.NewMalformedRowError(line, len(fields), text)
			p.logger.DebugContext(ctx, "skipping malformed row", "line", line, "fields", len(fields))
			rowErrs = append(rowErrs, err)
			continue
		}
		records = append(records, domain.NewRecord(fields))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read ratings at line %d: %w", line+1, err)
	}
	return records, rowErrs, ctx.Err()
}

var _ ports.Parser = (*Parser)(nil)
