// Package dispatcher fans a route queue out to a bounded pool of workers, each
// driving its own browser session.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/device"
	"github.com/JakeFAU/routeshot/internal/logging"
	"github.com/JakeFAU/routeshot/internal/worker"
)

// Config controls pool sizing and failure handling.
type Config struct {
	Concurrency int
	Profile     device.Profile
	// FailFast stops every worker from claiming new routes after the first
	// failure. By default the other workers drain the queue.
	FailFast bool
}

// Result is what a pool produced.
type Result struct {
	// Artifacts are ordered by artifact path.
	Artifacts []crawler.Artifact
	Workers   int
}

// Dispatcher runs one pool over the queue in deps.
type Dispatcher struct {
	browser crawler.Browser
	cfg     Config
	deps    worker.Deps
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(browser crawler.Browser, cfg Config, deps worker.Deps, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{browser: browser, cfg: cfg, deps: deps, logger: logger}
}

// PoolSize is min(concurrency, routes), never below one.
func PoolSize(concurrency, routes int) int {
	n := concurrency
	if routes < n {
		n = routes
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run starts the pool and blocks until every worker has returned. The error is
// the first worker failure; artifacts captured by other workers are still
// returned alongside it.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	if d.deps.Queue == nil {
		return Result{}, errors.New("dispatcher: queue is required")
	}
	n := PoolSize(d.cfg.Concurrency, d.deps.Queue.Len())

	var (
		mu        sync.Mutex
		artifacts []crawler.Artifact
	)
	deps := d.deps
	forward := d.deps.OnArtifact
	deps.OnArtifact = func(a crawler.Artifact) {
		mu.Lock()
		artifacts = append(artifacts, a)
		mu.Unlock()
		if forward != nil {
			forward(a)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	workCtx := ctx
	if d.cfg.FailFast {
		workCtx = gctx
	}
	for i := 0; i < n; i++ {
		w := worker.New(i, deps, d.logger)
		g.Go(func() error {
			return d.runWorker(workCtx, w)
		})
	}
	err := g.Wait()

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
	return Result{Artifacts: artifacts, Workers: n}, err
}

func (d *Dispatcher) runWorker(ctx context.Context, w *worker.Worker) error {
	sess, err := d.browser.NewSession(ctx, d.cfg.Profile)
	if err != nil {
		logging.Error(d.logger, "open session failed", zap.Int("worker", w.ID()), zap.Error(err))
		return fmt.Errorf("worker %d: open session: %w", w.ID(), err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logging.Warn(d.logger, "close session failed", zap.Int("worker", w.ID()), zap.Error(cerr))
		}
	}()
	return w.Run(ctx, sess)
}
