package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/routeshot/internal/app"
	"github.com/JakeFAU/routeshot/internal/config"
	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/device"
)

type harness struct {
	env    *env
	stdout *bytes.Buffer
	stderr *bytes.Buffer

	mu   sync.Mutex
	cfgs []config.Config
}

func newHarness(summary crawler.RunSummary) *harness {
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.env = &env{
		stdout: h.stdout,
		stderr: h.stderr,
		run: func(_ context.Context, cfg config.Config, opts app.Options) crawler.RunSummary {
			h.mu.Lock()
			h.cfgs = append(h.cfgs, cfg)
			h.mu.Unlock()
			return summary
		},
		exit:    func(int) { panic("unexpected exit") },
		signals: func(chan<- os.Signal) {},
	}
	return h
}

func TestExecuteDefaultAction(t *testing.T) {
	h := newHarness(crawler.RunSummary{})
	code := execute(context.Background(), h.env, []string{
		"--base-url", "http://localhost:3000",
		"--routes", "/a, /b",
		"--concurrency", "3",
		"--device", "mobile",
		"--fail-fast",
	})
	require.Equal(t, 0, code, h.stderr.String())
	require.Len(t, h.cfgs, 1)
	cfg := h.cfgs[0]
	assert.Equal(t, "http://localhost:3000", cfg.BaseURL)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Routes)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, device.Mobile, cfg.Device)
	assert.True(t, cfg.FailFast)
}

func TestExecuteRunSubcommand(t *testing.T) {
	h := newHarness(crawler.RunSummary{})
	code := execute(context.Background(), h.env, []string{"run", "--timeout-ms", "2500", "--output-dir", "shots"})
	require.Equal(t, 0, code, h.stderr.String())
	require.Len(t, h.cfgs, 1)
	assert.Equal(t, 2500*time.Millisecond, h.cfgs[0].NavTimeout)
	assert.Equal(t, "shots", h.cfgs[0].OutputDir)
}

func TestExecuteFailedRunExitsOne(t *testing.T) {
	h := newHarness(crawler.RunSummary{Err: errors.New("bad status 404 for http://x/a")})
	code := execute(context.Background(), h.env, []string{"--routes", "/a"})
	assert.Equal(t, 1, code)
}

func TestExecuteConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routeshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency: 2\nroutes:\n  - /x\n  - /y\n"), 0o600))

	h := newHarness(crawler.RunSummary{})
	code := execute(context.Background(), h.env, []string{"--config", path, "--concurrency", "5"})
	require.Equal(t, 0, code, h.stderr.String())
	assert.Equal(t, []string{"/x", "/y"}, h.cfgs[0].Routes)
	assert.Equal(t, 5, h.cfgs[0].Concurrency, "flags win over the file")
}

func TestExecuteMissingConfigFile(t *testing.T) {
	h := newHarness(crawler.RunSummary{})
	code := execute(context.Background(), h.env, []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "[error] load config")
	assert.Empty(t, h.cfgs)
}

func TestExecuteUnknownFlag(t *testing.T) {
	h := newHarness(crawler.RunSummary{})
	code := execute(context.Background(), h.env, []string{"--no-such-flag"})
	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "[error] unknown flag")
}

func TestSignalExitsImmediately(t *testing.T) {
	exited := make(chan int, 1)
	h := newHarness(crawler.RunSummary{})
	h.env.exit = func(code int) { exited <- code }
	h.env.signals = func(c chan<- os.Signal) { c <- syscall.SIGINT }
	h.env.run = func(ctx context.Context, _ config.Config, _ app.Options) crawler.RunSummary {
		select {
		case <-exited:
			exited <- 130
		case <-time.After(5 * time.Second):
		}
		return crawler.RunSummary{}
	}

	execute(context.Background(), h.env, nil)
	select {
	case code := <-exited:
		assert.Equal(t, 130, code)
	default:
		t.Fatal("exit was not called")
	}
	assert.Contains(t, h.stdout.String(), "[info] received SIGINT, exiting...")
}

func TestSignalExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 130, signalExitCode(syscall.SIGINT))
	assert.Equal(t, 143, signalExitCode(syscall.SIGTERM))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
}
