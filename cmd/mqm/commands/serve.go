package commands

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-mqm/infrastructure/httpapi"
	"github.com/ahrav/go-mqm/infrastructure/sources"
	"github.com/ahrav/go-mqm/infrastructure/tsv"
	"github.com/ahrav/go-mqm/internal/application"
	"github.com/ahrav/go-mqm/internal/ports"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve [source...]",
		Short: "Serve the HTTP API over the given sources",
		Long: `serve loads the sources and answers queries over HTTP. Submitted ratings
are appended to ratings_file, which is loaded with the other sources when it
exists. With --watch, local sources are reloaded when they change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, args, addr, watch)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload local sources when they change (default server.watch)")
	return cmd
}

// reloader serializes reloads from the API and the file watcher.
type reloader struct {
	mu          sync.Mutex
	a           *app
	args        []string
	ratingsFile string
}

// locations lists the sources to load: the arguments, then the ratings
// file once something has been submitted to it.
func (r *reloader) locations() []string {
	locs := slices.Clone(r.args)
	if r.ratingsFile != "" {
		if _, err := os.Stat(r.ratingsFile); err == nil {
			locs = append(locs, r.ratingsFile)
		}
	}
	return locs
}

func (r *reloader) reload(ctx context.Context) (*application.LoadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.a.load(ctx, nil, r.locations())
}

func runServe(cmd *cobra.Command, opts *globalOptions, args []string, addr string, watch bool) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts, httpapi.DefaultServiceName, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if slices.Contains(args, stdinLocation) {
		return errors.New("serve cannot reload stdin; pass files or URLs")
	}
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	watch = watch || a.cfg.Server.Watch

	var sink ports.RatingSink
	watched := slices.Clone(args)
	if a.cfg.RatingsFile != "" {
		sink = tsv.NewFileSink(a.cfg.RatingsFile)
		watched = append(watched, a.cfg.RatingsFile)
	}

	rl := &reloader{a: a, args: args, ratingsFile: a.cfg.RatingsFile}
	if len(rl.locations()) > 0 {
		if _, err := rl.reload(ctx); err != nil {
			return err
		}
	} else {
		a.logger.WarnContext(ctx, "no sources given; serving until ratings are submitted and reloaded")
	}

	srv := httpapi.NewServer(httpapi.Config{
		Engine:      a.engine,
		Sink:        sink,
		Gatherer:    a.registry,
		Reload:      rl.reload,
		Logger:      a.logger,
		ServiceName: httpapi.DefaultServiceName,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, addr) })

	if paths := sources.LocalPaths(watched); watch && len(paths) > 0 {
		w, err := sources.NewWatcher(paths, a.cfg.Server.WatchDebounce, a.logger)
		if err != nil {
			return err
		}
		defer w.Close()
		g.Go(func() error {
			err := w.Run(gctx, func(ctx context.Context, changed []string) {
				a.logger.InfoContext(ctx, "sources changed, reloading", "paths", changed)
				if _, err := rl.reload(ctx); err != nil {
					a.logger.ErrorContext(ctx, "reload failed", "error", err)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
