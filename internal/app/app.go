// Package app is the run controller: it wires configuration into a browser,
// a worker pool, and the artifact stores, then reduces the pool's result to a
// RunSummary and an exit status.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/routeshot/internal/capture"
	"github.com/JakeFAU/routeshot/internal/clock/system"
	"github.com/JakeFAU/routeshot/internal/config"
	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/dispatcher"
	"github.com/JakeFAU/routeshot/internal/hash/sha256"
	"github.com/JakeFAU/routeshot/internal/headless"
	"github.com/JakeFAU/routeshot/internal/id/uuid"
	"github.com/JakeFAU/routeshot/internal/logging"
	"github.com/JakeFAU/routeshot/internal/navigation"
	"github.com/JakeFAU/routeshot/internal/policy/ratelimit"
	"github.com/JakeFAU/routeshot/internal/progress"
	"github.com/JakeFAU/routeshot/internal/progress/sinks"
	"github.com/JakeFAU/routeshot/internal/route"
	"github.com/JakeFAU/routeshot/internal/storage/gcs"
	"github.com/JakeFAU/routeshot/internal/storage/local"
	"github.com/JakeFAU/routeshot/internal/worker"
)

// ManifestName is the manifest's file name inside the output directory.
const ManifestName = "manifest.json"

const teardownTimeout = 10 * time.Second

// BrowserFactory launches the shared browser.
type BrowserFactory func(ctx context.Context, cfg headless.Config, logger *zap.Logger) (crawler.Browser, error)

// ChromedpBrowser launches Chrome through chromedp.
func ChromedpBrowser(_ context.Context, cfg headless.Config, logger *zap.Logger) (crawler.Browser, error) {
	b, err := headless.NewChromedp(cfg, logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Options carries the collaborators a run uses. Zero values select the
// production implementations.
type Options struct {
	Logger      *zap.Logger
	Browser     BrowserFactory
	Clock       crawler.Clock
	IDs         crawler.IDGenerator
	Hasher      crawler.Hasher
	GCS         gcs.ClientFactory
	Sleep       capture.SleepFunc
	ProgressOut io.Writer
}

// App executes one capture run.
type App struct {
	cfg    config.Config
	opts   Options
	logger *zap.Logger
}

// New creates an App for cfg.
func New(cfg config.Config, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Browser == nil {
		opts.Browser = ChromedpBrowser
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.IDs == nil {
		opts.IDs = uuid.New()
	}
	if opts.Hasher == nil {
		opts.Hasher = sha256.NewShort(route.DigestLen)
	}
	if opts.Sleep == nil {
		opts.Sleep = system.Sleep
	}
	return &App{cfg: cfg, opts: opts, logger: opts.Logger}
}

// run holds the per-run resources Run tears down.
type run struct {
	summary crawler.RunSummary
	runID   [16]byte
	hub     *progress.Hub
	metrics *prometheus.Registry
	store   *local.BlobStore
	mirror  *gcs.BlobStore
}

// Run performs the whole capture run and returns its summary. Every failure,
// startup included, is reported through the summary; Run never panics on the
// run path.
func (a *App) Run(ctx context.Context) crawler.RunSummary {
	r := &run{summary: crawler.RunSummary{
		Device:  a.cfg.Device.String(),
		BaseURL: a.cfg.BaseURL,
		Total:   len(a.cfg.Routes),
		Started: a.opts.Clock.Now(),
	}}

	err := a.execute(ctx, r)
	r.summary.Finished = a.opts.Clock.Now()
	if err != nil {
		r.summary.Err = err
		r.summary.ErrText = err.Error()
	}
	a.finish(r)

	if err != nil {
		logging.Error(a.logger, err.Error(), zap.String("run_id", r.summary.RunID))
	} else {
		logging.Done(a.logger, "screenshots complete")
	}
	return r.summary
}

func (a *App) execute(ctx context.Context, r *run) error {
	id, err := a.opts.IDs.NewID()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	r.summary.RunID = id
	if r.runID, err = progress.ParseRunID(id); err != nil {
		return err
	}

	baseURL, err := route.ParseBase(a.cfg.BaseURL)
	if err != nil {
		return err
	}
	specs, collisions, err := route.BuildSpecs(a.cfg.Routes, a.cfg.Device, a.opts.Hasher)
	if err != nil {
		return fmt.Errorf("artifact names: %w", err)
	}
	for _, c := range collisions {
		logging.Warn(a.logger, fmt.Sprintf("%q and %q both sanitize to %q", c.Earlier, c.Route, c.Sanitized),
			zap.String("artifact", c.Name))
	}

	if r.store, err = local.New(local.Config{BaseDir: a.cfg.OutputDir}); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	a.logStartup(r.store.BaseDir())

	if a.cfg.ArtifactBucket != "" {
		r.mirror, err = gcs.Open(ctx, a.opts.GCS, gcs.Config{Bucket: a.cfg.ArtifactBucket, Prefix: a.cfg.ArtifactPrefix}, a.logger)
		if err != nil {
			return fmt.Errorf("artifact mirror: %w", err)
		}
	}

	if r.hub, r.metrics, err = a.startProgress(len(specs)); err != nil {
		return err
	}
	a.emitRun(r, progress.StageRunStart, nil)

	browser, err := a.opts.Browser(ctx, headless.Config{Mode: a.cfg.Headless, ExecPath: a.cfg.ExecutablePath}, a.logger)
	if err != nil {
		err = fmt.Errorf("launch browser: %w", err)
		a.emitRun(r, progress.StageRunError, err)
		return err
	}

	res, poolErr := dispatcher.New(browser, dispatcher.Config{
		Concurrency: a.cfg.Concurrency,
		Profile:     a.cfg.Device,
		FailFast:    a.cfg.FailFast,
	}, a.workerDeps(r, specs, baseURL), a.logger).Run(ctx)

	a.releaseBrowser(browser)

	r.summary.Artifacts = res.Artifacts
	r.summary.Captured = len(res.Artifacts)
	if poolErr != nil {
		a.emitRun(r, progress.StageRunError, poolErr)
		return poolErr
	}
	a.emitRun(r, progress.StageRunDone, nil)
	return nil
}

func (a *App) logStartup(outDir string) {
	logging.Info(a.logger, "BASE_URL="+a.cfg.BaseURL)
	logging.Info(a.logger, "DEVICE="+a.cfg.Device.String())
	logging.Info(a.logger, "OUTPUT_DIR="+outDir)
	logging.Info(a.logger, "HEADLESS="+string(a.cfg.Headless))
	if a.cfg.ExecutablePath != "" {
		logging.Info(a.logger, "USING_EXECUTABLE="+a.cfg.ExecutablePath)
	}
	logging.Info(a.logger, "CONCURRENCY="+strconv.Itoa(a.cfg.Concurrency))
}

func (a *App) workerDeps(r *run, specs []route.Spec, baseURL *url.URL) worker.Deps {
	limiter := ratelimit.New(ratelimit.Config{
		QPS:   a.cfg.NavQPS,
		Burst: 1,
		OnDelay: func(host string, waited time.Duration) {
			logging.Debug(a.logger, "navigation paced", zap.String("host", host), zap.Duration("waited", waited))
		},
	})
	captureOpts := []capture.Option{capture.WithSleep(a.opts.Sleep)}
	if r.mirror != nil {
		captureOpts = append(captureOpts, capture.WithMirror(r.mirror))
	}
	return worker.Deps{
		Queue:   route.NewQueue(specs),
		BaseURL: baseURL,
		Navigator: navigation.New(navigation.Config{
			Timeout: a.cfg.NavTimeout,
			Limiter: limiter,
		}, a.logger),
		Capturer: capture.New(capture.Config{
			ReadySelector: a.cfg.ReadySelector,
			ReadyTimeout:  a.cfg.ReadyTimeout,
			Settle:        a.cfg.Settle,
		}, r.store, a.opts.Clock, a.logger, captureOpts...),
		Emitter: r.hub,
		Clock:   a.opts.Clock,
		RunID:   r.runID,
	}
}

// startProgress builds the hub and its sinks. Metrics live on a private
// registry that is written out as a textfile when the run ends.
func (a *App) startProgress(total int) (*progress.Hub, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}
	all := []progress.Sink{promSink}
	if a.cfg.LogDevelopment {
		all = append(all, sinks.NewLogSink(a.logger.Named("progress")))
	}
	if a.cfg.ProgressBar {
		all = append(all, sinks.NewBarSink(total, a.opts.ProgressOut))
	}
	hub := progress.NewHub(progress.Config{Logger: a.logger.Named("progress")}, all...)
	return hub, reg, nil
}

func (a *App) emitRun(r *run, stage progress.Stage, err error) {
	if r.hub == nil {
		return
	}
	evt := progress.Event{
		RunID:  r.runID,
		TS:     a.opts.Clock.Now(),
		Stage:  stage,
		Worker: -1,
		Dur:    a.opts.Clock.Now().Sub(r.summary.Started),
	}
	if err != nil {
		evt.Note = err.Error()
	}
	r.hub.Emit(evt)
}

// releaseBrowser closes the browser. Teardown failures never change the
// run's outcome.
func (a *App) releaseBrowser(b crawler.Browser) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := b.Close(ctx); err != nil {
		logging.Warn(a.logger, "browser close failed", zap.Error(err))
	}
}

// finish flushes progress and writes the run's side outputs. Failures are
// logged; they do not affect the exit status.
func (a *App) finish(r *run) {
	if r.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		if err := r.hub.Close(ctx); err != nil {
			logging.Warn(a.logger, "progress flush failed", zap.Error(err))
		}
		cancel()
		if dropped := r.hub.Dropped(); dropped > 0 {
			logging.Warn(a.logger, "progress events dropped", zap.Int64("count", dropped))
		}
		logging.Debug(a.logger, "progress delivered",
			zap.Int64("routes_done", r.hub.Delivered(progress.StageRouteDone)),
			zap.Int64("routes_failed", r.hub.Delivered(progress.StageRouteError)),
			zap.Int64("fallbacks", r.hub.Delivered(progress.StageNavFallback)))
	}
	if a.cfg.Manifest && r.store != nil {
		if err := a.writeManifest(r); err != nil {
			logging.Warn(a.logger, "manifest not written", zap.Error(err))
		}
	}
	if a.cfg.MetricsFile != "" && r.metrics != nil {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, r.metrics); err != nil {
			logging.Warn(a.logger, "metrics textfile not written", zap.String("path", a.cfg.MetricsFile), zap.Error(err))
		}
	}
	if r.mirror != nil {
		if err := r.mirror.Close(); err != nil {
			logging.Warn(a.logger, "artifact mirror close failed", zap.Error(err))
		}
	}
}

func (a *App) writeManifest(r *run) error {
	summary := r.summary
	if summary.Artifacts == nil {
		summary.Artifacts = []crawler.Artifact{}
	}
	body, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	body = append(body, '\n')
	if _, err := r.store.PutObject(context.Background(), ManifestName, "application/json", bytes.NewReader(body)); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if r.mirror != nil {
		if _, err := r.mirror.PutObject(context.Background(), ManifestName, "application/json", bytes.NewReader(body)); err != nil {
			return fmt.Errorf("mirror manifest: %w", err)
		}
	}
	return nil
}
