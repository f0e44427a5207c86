// Package headless drives headless Chrome through chromedp. A Browser is the
// shared engine process; each Session is a tab owned by one worker.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/device"
)

// Mode is the browser visibility mode.
type Mode string

// Supported visibility modes.
const (
	ModeNew   Mode = "new"
	ModeTrue  Mode = "true"
	ModeFalse Mode = "false"
)

// ParseMode maps HEADLESS-style input onto a Mode. Unknown input means ModeNew.
func ParseMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1":
		return ModeTrue
	case "false", "0":
		return ModeFalse
	default:
		return ModeNew
	}
}

// Config controls how the browser process is launched.
type Config struct {
	Mode      Mode
	ExecPath  string
	UserAgent string
}

// ErrBrowserClosed is returned when a session is requested after Close.
var ErrBrowserClosed = errors.New("browser closed")

// Browser owns the Chrome process shared by all sessions of a run.
type Browser struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	cfg             Config
	logger          *zap.Logger
}

// NewChromedp launches Chrome and waits for it to accept commands.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return start(allocatorCtx, allocatorCancel, cfg, logger)
}

// start opens the browser-level context on an allocator and runs it once so
// the process or connection is up before any session is requested.
func start(allocatorCtx context.Context, allocatorCancel context.CancelFunc, cfg Config, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &Browser{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		cfg:             cfg,
		logger:          logger,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	switch cfg.Mode {
	case ModeFalse:
		opts = append(opts, chromedp.Flag("headless", false), chromedp.Flag("hide-scrollbars", false))
	case ModeTrue:
		opts = append(opts, chromedp.Flag("headless", true))
	default:
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// NewSession opens a tab emulating profile's viewport.
func (b *Browser) NewSession(ctx context.Context, profile device.Profile) (crawler.Session, error) {
	if b == nil || b.browserCtx.Err() != nil {
		return nil, ErrBrowserClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)

	// The first Run attaches the target for as long as the context it is given
	// lives, so it has to be tabCtx itself and never a shorter-lived child.
	stopTab := forwardCancel(ctx, cancelTab)
	err := chromedp.Run(tabCtx)
	stopTab()
	if err != nil {
		cancelTab()
		return nil, fmt.Errorf("open session: %w", err)
	}
	s := newSession(tabCtx, cancelTab, b.logger)

	setupCtx, cancelSetup := context.WithCancel(tabCtx)
	defer cancelSetup()
	stopSetup := forwardCancel(ctx, cancelSetup)
	defer stopSetup()

	if err := chromedp.Run(setupCtx, s.setupActions(profile)...); err != nil {
		cancelTab()
		return nil, fmt.Errorf("open session: %w", err)
	}
	return s, nil
}

// Close shuts the browser down. It waits for the process to exit up to ctx's
// deadline and always releases the allocator.
func (b *Browser) Close(ctx context.Context) error {
	if b == nil {
		return nil
	}
	defer b.allocatorCancel()
	defer b.browserCancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(b.browserCtx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("close browser: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close browser: %w", ctx.Err())
	}
}

// forwardCancel cancels a chromedp-derived context when the caller's context
// ends. Tab contexts descend from the browser, not from the caller.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
