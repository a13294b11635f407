package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/checklist"
	"github.com/roach88/readykit/internal/remote"
	"github.com/roach88/readykit/internal/report"
	"github.com/roach88/readykit/internal/store"
	"github.com/roach88/readykit/internal/syncqueue"
)

// app bundles the components a command works with. Components are opened
// lazily so a command only touches what it needs.
type app struct {
	opts  *RootOptions
	log   *zap.Logger
	store *store.Store

	queue     *syncqueue.Queue
	checklist *checklist.Controller
}

func openApp(opts *RootOptions) (*app, error) {
	st, err := store.Open(opts.Config.DB)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("Database open", zap.String("path", opts.Config.DB))
	return &app{opts: opts, log: opts.Logger, store: st}, nil
}

func (a *app) remoteOptions() []remote.Option {
	ro := []remote.Option{remote.WithLogger(a.log.Named("remote"))}
	if a.opts.HTTPClient != nil {
		ro = append(ro, remote.WithHTTPClient(a.opts.HTTPClient))
	}
	if a.opts.Config.Token != "" {
		ro = append(ro, remote.WithToken(a.opts.Config.Token))
	}
	return ro
}

func (a *app) reports() *remote.ReportClient {
	return remote.NewReportClient(a.opts.Config.APIURL, a.remoteOptions()...)
}

// openQueue loads the durable queue, reverting interrupted deliveries.
func (a *app) openQueue(ctx context.Context) (*syncqueue.Queue, error) {
	cfg := a.opts.Config
	q := syncqueue.New(a.store, a.reports(),
		syncqueue.WithClock(a.opts.clock()),
		syncqueue.WithLogger(a.log.Named("queue")),
		syncqueue.WithConcurrency(cfg.FlushConcurrency),
		syncqueue.WithBackoff(cfg.Backoff),
		syncqueue.WithValidator(report.Validate),
	)
	if err := q.Load(ctx); err != nil {
		return nil, err
	}
	a.queue = q
	return q, nil
}

// openChecklist loads the checklist. Remote sync is enabled only when a
// token is configured; the session then starts from the remote copy when
// the service holds one. An unreachable service leaves the local copy in
// place with status sync_error.
func (a *app) openChecklist(ctx context.Context) (*checklist.Controller, error) {
	cfg := a.opts.Config
	co := []checklist.Option{
		checklist.WithClock(a.opts.clock()),
		checklist.WithDebounce(cfg.Debounce),
		checklist.WithLogger(a.log.Named("checklist")),
	}
	if cfg.Token != "" {
		co = append(co, checklist.WithRemote(remote.NewChecklistClient(cfg.APIURL, a.remoteOptions()...)))
	}
	c := checklist.New(a.store, co...)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	a.checklist = c
	if cfg.Token != "" {
		if err := c.Pull(ctx); err != nil {
			a.log.Warn("Checklist pull failed; using local copy", zap.Error(err))
		}
	}
	return c, nil
}

func (a *app) Close() error {
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if a.checklist != nil {
		_ = a.checklist.Close()
	}
	return a.store.Close()
}
