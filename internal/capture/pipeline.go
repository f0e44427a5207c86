// Package capture turns a navigated session into a persisted artifact:
// readiness wait, settle delay, full-page screenshot, store write.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/routeshot/internal/clock/system"
	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/logging"
	"github.com/JakeFAU/routeshot/internal/navigation"
	"github.com/JakeFAU/routeshot/internal/route"
)

// ContentType is recorded on every stored artifact.
const ContentType = "image/png"

// Config controls the settling steps that precede a capture.
type Config struct {
	ReadySelector string
	// ReadyTimeout bounds the readiness wait. Expiry is logged and ignored.
	ReadyTimeout time.Duration
	// Settle is slept unconditionally after the readiness wait.
	Settle time.Duration
}

// SleepFunc pauses for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithMirror uploads every artifact to a second store after the primary write.
func WithMirror(store crawler.ArtifactStore) Option {
	return func(p *Pipeline) { p.mirror = store }
}

// WithSleep replaces the settle sleep, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(p *Pipeline) { p.sleep = fn }
}

// Pipeline captures and persists artifacts. It is stateless per call and safe
// to share between workers as long as its stores are.
type Pipeline struct {
	cfg    Config
	store  crawler.ArtifactStore
	mirror crawler.ArtifactStore
	clock  crawler.Clock
	sleep  SleepFunc
	logger *zap.Logger
}

// New constructs a Pipeline writing to store.
func New(cfg Config, store crawler.ArtifactStore, clock crawler.Clock, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:    cfg,
		store:  store,
		clock:  clock,
		sleep:  system.Sleep,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Capture settles the page sess currently shows, screenshots it, and writes the
// image as spec's artifact. Screenshot or write failures wrap
// crawler.ErrCapture and are not retried.
func (p *Pipeline) Capture(
	ctx context.Context,
	sess crawler.Session,
	spec route.Spec,
	nav navigation.Outcome,
) (crawler.Artifact, error) {
	if p.cfg.ReadySelector != "" {
		if err := sess.WaitReady(ctx, p.cfg.ReadySelector, p.cfg.ReadyTimeout); err != nil {
			if ctx.Err() != nil {
				return crawler.Artifact{}, fmt.Errorf("wait ready: %w", ctx.Err())
			}
			logging.Debug(p.logger, "readiness marker not found, continuing",
				zap.String("selector", p.cfg.ReadySelector), zap.String("url", nav.URL), zap.Error(err))
		}
	}

	if err := p.sleep(ctx, p.cfg.Settle); err != nil {
		return crawler.Artifact{}, fmt.Errorf("settle: %w", err)
	}

	img, err := sess.Capture(ctx)
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("%w: screenshot %s: %w", crawler.ErrCapture, spec.Path, err)
	}

	name := spec.FileName()
	location, err := p.store.PutObject(ctx, name, ContentType, bytes.NewReader(img))
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("%w: write %s: %w", crawler.ErrCapture, name, err)
	}

	art := crawler.Artifact{
		Route:    spec.Path,
		URL:      nav.URL,
		Device:   spec.Device,
		Path:     location,
		Status:   nav.Status,
		Relaxed:  nav.Relaxed,
		Bytes:    len(img),
		Captured: p.clock.Now(),
	}
	if p.mirror != nil {
		uri, err := p.mirror.PutObject(ctx, name, ContentType, bytes.NewReader(img))
		if err != nil {
			return art, fmt.Errorf("%w: mirror %s: %w", crawler.ErrCapture, name, err)
		}
		art.Mirror = uri
	}
	return art, nil
}
