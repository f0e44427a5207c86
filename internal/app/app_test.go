package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/routeshot/internal/config"
	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/crawler/crawlertest"
	"github.com/JakeFAU/routeshot/internal/device"
	"github.com/JakeFAU/routeshot/internal/headless"
)

const base = "http://127.0.0.1:8080"

type staticIDs struct {
	id  string
	err error
}

func (s staticIDs) NewID() (string, error) { return s.id, s.err }

func testConfig(t *testing.T, routes ...string) config.Config {
	t.Helper()
	return config.Config{
		BaseURL:       base,
		Device:        device.Desktop,
		Routes:        routes,
		NavTimeout:    time.Second,
		Headless:      headless.ModeNew,
		Concurrency:   4,
		OutputDir:     filepath.Join(t.TempDir(), "artifacts"),
		ReadyTimeout:  time.Second,
		ReadySelector: "body",
		Manifest:      true,
	}
}

func fakeBrowser(b *crawlertest.Browser) BrowserFactory {
	return func(context.Context, headless.Config, *zap.Logger) (crawler.Browser, error) {
		return b, nil
	}
}

func newTestApp(cfg config.Config, b *crawlertest.Browser) (*App, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New(cfg, Options{
		Logger:  zap.New(core),
		Browser: fakeBrowser(b),
		IDs:     staticIDs{id: "0190b5f6-7c1e-7000-8000-000000000001"},
		Sleep:   func(context.Context, time.Duration) error { return nil },
	}), logs
}

func messages(logs *observer.ObservedLogs) []string {
	out := make([]string, 0, logs.Len())
	for _, e := range logs.All() {
		out = append(out, e.Message)
	}
	return out
}

func TestRunCapturesRoutes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "/a", "/b")
	cfg.MetricsFile = filepath.Join(t.TempDir(), "routeshot.prom")
	browser := crawlertest.NewBrowser(nil)
	a, logs := newTestApp(cfg, browser)

	summary := a.Run(context.Background())
	require.NoError(t, summary.Err)
	assert.Equal(t, 0, summary.ExitCode())
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Captured)
	assert.True(t, browser.Closed())

	for _, name := range []string{"_a-desktop.png", "_b-desktop.png"} {
		img, err := os.ReadFile(filepath.Join(cfg.OutputDir, name))
		require.NoError(t, err, name)
		assert.True(t, strings.HasPrefix(string(img), "\x89PNG"), name)
	}

	raw, err := os.ReadFile(filepath.Join(cfg.OutputDir, ManifestName))
	require.NoError(t, err)
	var manifest crawler.RunSummary
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, "0190b5f6-7c1e-7000-8000-000000000001", manifest.RunID)
	require.Len(t, manifest.Artifacts, 2)
	assert.Equal(t, "/a", manifest.Artifacts[0].Route)

	metrics, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `routeshot_routes_captured_total{status_class="2xx"} 2`)

	msgs := messages(logs)
	assert.Contains(t, msgs, "[info] BASE_URL="+base)
	assert.Contains(t, msgs, "[info] DEVICE=desktop")
	assert.Contains(t, msgs, "[info] CONCURRENCY=4")
	assert.Contains(t, msgs, "[step] visiting "+base+"/a")
	assert.Equal(t, "[done] screenshots complete", msgs[len(msgs)-1])
	assert.NotContains(t, strings.Join(msgs, "\n"), "USING_EXECUTABLE")
}

func TestRunBadStatusExitsOne(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "/a", "/missing")
	browser := crawlertest.NewBrowser(map[string]crawlertest.Page{
		base + "/missing": {Status: 404},
	})
	a, logs := newTestApp(cfg, browser)

	summary := a.Run(context.Background())
	require.ErrorIs(t, summary.Err, crawler.ErrBadStatus)
	assert.Equal(t, 1, summary.ExitCode())
	assert.Contains(t, summary.ErrText, "bad status 404 for "+base+"/missing")
	assert.True(t, browser.Closed())

	_, err := os.Stat(filepath.Join(cfg.OutputDir, "_missing-desktop.png"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(cfg.OutputDir, "_a-desktop.png"))
	assert.NoError(t, err)

	errLines := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.NotEmpty(t, errLines)
	assert.True(t, strings.HasPrefix(errLines[len(errLines)-1].Message, "[error] "))
}

func TestRunFallbackStillSucceeds(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "/slow")
	a, logs := newTestApp(cfg, crawlertest.NewBrowser(map[string]crawlertest.Page{
		base + "/slow": {IdleTimeout: true},
	}))
	summary := a.Run(context.Background())
	require.NoError(t, summary.Err)
	require.Len(t, summary.Artifacts, 1)
	assert.True(t, summary.Artifacts[0].Relaxed)
	assert.NotEmpty(t, logs.FilterLevelExact(zapcore.WarnLevel).All())
}

func TestRunSwallowsBrowserCloseError(t *testing.T) {
	t.Parallel()

	browser := crawlertest.NewBrowser(nil)
	browser.CloseErr = errors.New("process already gone")
	a, logs := newTestApp(testConfig(t, "/a"), browser)

	summary := a.Run(context.Background())
	require.NoError(t, summary.Err)
	assert.Equal(t, 0, summary.ExitCode())
	assert.Equal(t, 1, logs.FilterMessage("[warn] browser close failed").Len())
}

func TestRunLaunchFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	a := New(testConfig(t, "/a"), Options{
		Logger: zap.New(core),
		Browser: func(context.Context, headless.Config, *zap.Logger) (crawler.Browser, error) {
			return nil, errors.New("chrome not found")
		},
	})
	summary := a.Run(context.Background())
	require.Error(t, summary.Err)
	assert.Equal(t, 1, summary.ExitCode())
	assert.Contains(t, summary.ErrText, "launch browser: chrome not found")
	assert.Equal(t, 1, logs.FilterMessage("[error] launch browser: chrome not found").Len())
}

func TestRunPassesBrowserConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "/a")
	cfg.Headless = headless.ModeFalse
	cfg.ExecutablePath = "/opt/chrome/chrome"
	var got headless.Config
	core, logs := observer.New(zapcore.InfoLevel)
	a := New(cfg, Options{
		Logger: zap.New(core),
		Browser: func(_ context.Context, hc headless.Config, _ *zap.Logger) (crawler.Browser, error) {
			got = hc
			return crawlertest.NewBrowser(nil), nil
		},
		Sleep: func(context.Context, time.Duration) error { return nil },
	})
	require.NoError(t, a.Run(context.Background()).Err)
	assert.Equal(t, headless.Config{Mode: headless.ModeFalse, ExecPath: "/opt/chrome/chrome"}, got)
	assert.Equal(t, 1, logs.FilterMessage("[info] USING_EXECUTABLE=/opt/chrome/chrome").Len())
	assert.Equal(t, 1, logs.FilterMessage("[info] HEADLESS=false").Len())
}

func TestRunDisambiguatesCollidingRoutes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "/a/b", "/a_b")
	a, logs := newTestApp(cfg, crawlertest.NewBrowser(nil))
	summary := a.Run(context.Background())
	require.NoError(t, summary.Err)

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	var pngs []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".png") {
			pngs = append(pngs, e.Name())
		}
	}
	require.Len(t, pngs, 2)
	assert.Contains(t, pngs, "_a_b-desktop.png")
	assert.Len(t, logs.FilterLevelExact(zapcore.WarnLevel).All(), 1)
}

func TestRunEmptyRoutes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Manifest = false
	a, _ := newTestApp(cfg, crawlertest.NewBrowser(nil))
	summary := a.Run(context.Background())
	require.NoError(t, summary.Err)
	assert.Zero(t, summary.Captured)
	_, err := os.Stat(filepath.Join(cfg.OutputDir, ManifestName))
	assert.True(t, os.IsNotExist(err))
}

func TestRunOutputDirIsFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "/a")
	cfg.OutputDir = filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(cfg.OutputDir, []byte("x"), 0o600))
	browser := crawlertest.NewBrowser(nil)
	a, _ := newTestApp(cfg, browser)

	summary := a.Run(context.Background())
	require.Error(t, summary.Err)
	assert.Contains(t, summary.ErrText, "output dir")
	assert.Empty(t, browser.Sessions(), "the browser is never launched")
}

func TestRunIDFailure(t *testing.T) {
	t.Parallel()

	a := New(testConfig(t, "/a"), Options{
		Browser: fakeBrowser(crawlertest.NewBrowser(nil)),
		IDs:     staticIDs{err: errors.New("no entropy")},
	})
	summary := a.Run(context.Background())
	require.Error(t, summary.Err)
	assert.Contains(t, summary.ErrText, "run id: no entropy")
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	browser := crawlertest.NewBrowser(nil)
	a, _ := newTestApp(testConfig(t, "/a"), browser)
	summary := a.Run(ctx)
	require.ErrorIs(t, summary.Err, context.Canceled)
	assert.Equal(t, 1, summary.ExitCode())
	assert.True(t, browser.Closed())
}
