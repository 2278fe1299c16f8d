package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-mqm/internal/domain"
	"github.com/ahrav/go-mqm/internal/ports"
)

// ErrNoSources is returned when a load is requested with nothing to read.
var ErrNoSources = errors.New("no sources to load")

// LoadResult is the outcome of reading several sources into one data set.
type LoadResult struct {
	Records []domain.Record
	// RowErrors holds one error per skipped row.
	RowErrors []error
	// SourceErrors holds one SourceFetchError per source that could not be
	// read. The other sources are still loaded.
	SourceErrors []error
	// Loaded names the sources that contributed text, in argument order.
	Loaded []string
}

// Loader fetches sources concurrently, joins their text in argument order
// and parses the result once.
type Loader struct {
	parser      ports.Parser
	concurrency int
	logger      *slog.Logger
}

// NewLoader creates a loader. concurrency <= 0 uses DefaultSourceConcurrency.
func NewLoader(parser ports.Parser, concurrency int, logger *slog.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = DefaultSourceConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{parser: parser, concurrency: concurrency, logger: logger}
}

// Load reads every source. A failing source is reported in SourceErrors and
// does not prevent the others from loading; an error is returned only when
// ctx ends or when no source could be read.
func (l *Loader) Load(ctx context.Context, sources ...ports.Source) (*LoadResult, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	ctx, span := otel.Tracer("mqm-loader").Start(ctx, "Loader.Load")
	defer span.End()
	span.SetAttributes(attribute.Int("sources.count", len(sources)))

	texts := make([]string, len(sources))
	fetchErrs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			text, err := src.Fetch(gctx)
			if err != nil {
				var sfe *ports.SourceFetchError
				if !errors.As(err, &sfe) {
					err = ports.NewSourceFetchError(src.Name(), err)
				}
				fetchErrs[i] = err
				l.logger.WarnContext(gctx, "source fetch failed", "source", src.Name(), "error", err)
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res := &LoadResult{}
	var joined []string
	for i, src := range sources {
		if fetchErrs[i] != nil {
			res.SourceErrors = append(res.SourceErrors, fetchErrs[i])
			continue
		}
		joined = append(joined, texts[i])
		res.Loaded = append(res.Loaded, src.Name())
	}
	if len(res.Loaded) == 0 {
		err := fmt.Errorf("all %d sources failed: %w", len(sources), errors.Join(res.SourceErrors...))
		span.RecordError(err)
		span.SetStatus(codes.Error, "all sources failed")
		return nil, err
	}

	records, rowErrs, err := l.parser.Parse(ctx, domain.JoinSources(joined))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse sources: %w", err)
	}
	res.Records = records
	res.RowErrors = rowErrs

	span.SetAttributes(
		attribute.Int("records.count", len(records)),
		attribute.Int("records.malformed", len(rowErrs)),
		attribute.Int("sources.failed", len(res.SourceErrors)),
	)
	span.SetStatus(codes.Ok, "")
	l.logger.InfoContext(ctx, "sources loaded",
		"sources", len(res.Loaded),
		"failed_sources", len(res.SourceErrors),
		"records", len(records),
		"malformed_rows", len(rowErrs),
	)
	return res, nil
}
