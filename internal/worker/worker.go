// Package worker implements the per-worker capture loop: claim a route,
// navigate, capture, repeat until the queue is empty or a route fails.
package worker

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/logging"
	"github.com/JakeFAU/routeshot/internal/navigation"
	"github.com/JakeFAU/routeshot/internal/progress"
	"github.com/JakeFAU/routeshot/internal/route"
)

// State is a worker's position in its loop.
type State int32

// Worker states. Done and Failed are terminal.
const (
	StateIdle State = iota
	StateClaiming
	StateNavigating
	StateCapturing
	StateDone
	StateFailed
)

var stateNames = [...]string{"idle", "claiming", "navigating", "capturing", "done", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Navigator drives a session to a URL.
type Navigator interface {
	Navigate(ctx context.Context, sess crawler.Session, url string) (navigation.Outcome, error)
}

// Capturer persists the page a session shows.
type Capturer interface {
	Capture(ctx context.Context, sess crawler.Session, spec route.Spec, nav navigation.Outcome) (crawler.Artifact, error)
}

// Deps are the collaborators shared by every worker of a pool.
type Deps struct {
	Queue     *route.Queue
	BaseURL   *url.URL
	Navigator Navigator
	Capturer  Capturer
	Emitter   progress.Emitter
	Clock     crawler.Clock
	RunID     [16]byte
	// OnArtifact, when set, receives every persisted artifact.
	OnArtifact func(crawler.Artifact)
}

// Worker owns one session for its lifetime and drains the shared queue.
type Worker struct {
	id       int
	deps     Deps
	logger   *zap.Logger
	state    atomic.Int32
	captured atomic.Int64
}

// New constructs a Worker.
func New(id int, deps Deps, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Nop{}
	}
	return &Worker{
		id:     id,
		deps:   deps,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// ID returns the worker's index in its pool.
func (w *Worker) ID() int {
	return w.id
}

// State returns the worker's current state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Captured returns how many artifacts the worker has persisted.
func (w *Worker) Captured() int {
	return int(w.captured.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run drives sess through claimed routes until the queue is exhausted (nil)
// or a route fails fatally (the error). It stops claiming once ctx ends.
func (w *Worker) Run(ctx context.Context, sess crawler.Session) error {
	for {
		w.setState(StateClaiming)
		if err := ctx.Err(); err != nil {
			w.setState(StateFailed)
			return fmt.Errorf("worker %d: %w", w.id, err)
		}
		spec, ok := w.deps.Queue.Claim()
		if !ok {
			w.setState(StateDone)
			return nil
		}
		if err := w.visit(ctx, sess, spec); err != nil {
			w.setState(StateFailed)
			return err
		}
	}
}

func (w *Worker) visit(ctx context.Context, sess crawler.Session, spec route.Spec) error {
	start := w.deps.Clock.Now()
	target, err := route.ResolveURL(w.deps.BaseURL, spec.Path)
	if err != nil {
		return w.fail(spec, spec.Path, start, err)
	}
	w.emit(progress.StageRouteStart, spec, target, func(*progress.Event) {})
	logging.Step(w.logger, "visiting "+target)

	w.setState(StateNavigating)
	out, err := w.deps.Navigator.Navigate(ctx, sess, target)
	if err != nil {
		return w.fail(spec, target, start, err)
	}
	if out.Relaxed {
		w.emit(progress.StageNavFallback, spec, target, func(*progress.Event) {})
	}

	w.setState(StateCapturing)
	art, err := w.deps.Capturer.Capture(ctx, sess, spec, out)
	if err != nil {
		return w.fail(spec, target, start, err)
	}
	w.captured.Add(1)
	logging.OK(w.logger, fmt.Sprintf("%s -> %s", target, art.Path))
	w.emit(progress.StageRouteDone, spec, target, func(evt *progress.Event) {
		evt.StatusClass = progress.ClassifyStatus(out.Status)
		evt.Bytes = int64(art.Bytes)
		evt.Dur = w.deps.Clock.Now().Sub(start)
		evt.Note = art.Path
	})
	if w.deps.OnArtifact != nil {
		w.deps.OnArtifact(art)
	}
	return nil
}

func (w *Worker) fail(spec route.Spec, target string, start time.Time, err error) error {
	wrapped := fmt.Errorf("worker %d: route %s: %w", w.id, spec.Path, err)
	logging.Error(w.logger, "route failed", zap.String("route", spec.Path), zap.String("url", target), zap.Error(err))
	w.emit(progress.StageRouteError, spec, target, func(evt *progress.Event) {
		evt.Dur = w.deps.Clock.Now().Sub(start)
		evt.Note = err.Error()
	})
	return wrapped
}

func (w *Worker) emit(stage progress.Stage, spec route.Spec, target string, fill func(*progress.Event)) {
	evt := progress.Event{
		RunID:  w.deps.RunID,
		TS:     w.deps.Clock.Now(),
		Stage:  stage,
		Worker: w.id,
		Route:  spec.Path,
		URL:    target,
	}
	fill(&evt)
	w.deps.Emitter.Emit(evt)
}
