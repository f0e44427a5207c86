package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/device"
)

// pngQuality makes chromedp.FullScreenshot emit PNG rather than JPEG.
const pngQuality = 100

// Session is a single Chrome tab. It is not safe for concurrent use; the
// owning worker drives it sequentially.
type Session struct {
	ctx       context.Context
	cancel    context.CancelFunc
	loads     *loadTracker
	logger    *zap.Logger
	closeOnce sync.Once
}

func newSession(tabCtx context.Context, cancel context.CancelFunc, logger *zap.Logger) *Session {
	s := &Session{
		ctx:    tabCtx,
		cancel: cancel,
		loads:  newLoadTracker(),
		logger: logger,
	}
	chromedp.ListenTarget(tabCtx, s.loads.observe)
	return s
}

func (s *Session) setupActions(profile device.Profile) []chromedp.Action {
	vp := profile.Viewport()
	emulate := []chromedp.EmulateViewportOption{chromedp.EmulateScale(vp.ScaleFactor)}
	if vp.Mobile {
		emulate = append(emulate, chromedp.EmulateMobile)
	}
	if vp.Touch {
		emulate = append(emulate, chromedp.EmulateTouch)
	}
	return []chromedp.Action{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		chromedp.EmulateViewport(vp.Width, vp.Height, emulate...),
	}
}

// Navigate loads url and blocks until the wait milestone fires for the new
// document, the timeout elapses, or ctx ends. Timeouts wrap
// crawler.ErrNavigationTimeout.
func (s *Session) Navigate(
	ctx context.Context,
	url string,
	wait crawler.WaitUntil,
	timeout time.Duration,
) (*crawler.Response, error) {
	taskCtx, cancelTask := context.WithTimeout(s.ctx, timeout)
	defer cancelTask()
	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	s.loads.reset()
	loaderID, err := s.navigate(taskCtx, url)
	if err != nil {
		return nil, s.classify(ctx, taskCtx, url, wait, timeout, err)
	}
	if loaderID == "" {
		// Same-document navigation: no new document, no response.
		return nil, nil
	}
	if err := s.loads.wait(taskCtx, loaderID, string(wait)); err != nil {
		return nil, s.classify(ctx, taskCtx, url, wait, timeout, err)
	}
	return s.loads.response(loaderID), nil
}

func (s *Session) navigate(ctx context.Context, url string) (string, error) {
	var loaderID string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, lid, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		loaderID = string(lid)
		return nil
	}))
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return loaderID, nil
}

// classify turns a deadline on the task context into ErrNavigationTimeout,
// leaving caller cancellation and other failures as they are.
func (s *Session) classify(
	callerCtx, taskCtx context.Context,
	url string,
	wait crawler.WaitUntil,
	timeout time.Duration,
	err error,
) error {
	if callerCtx.Err() != nil {
		return fmt.Errorf("navigate %s: %w", url, callerCtx.Err())
	}
	if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s not reached within %s for %s", crawler.ErrNavigationTimeout, wait, timeout, url)
	}
	return err
}

// WaitReady waits until selector matches, bounded by timeout.
func (s *Session) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	taskCtx, cancelTask := context.WithTimeout(s.ctx, timeout)
	defer cancelTask()
	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	if err := chromedp.Run(taskCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait ready %q: %w", selector, err)
	}
	return nil
}

// Capture takes a full-page PNG screenshot.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	taskCtx, cancelTask := context.WithCancel(s.ctx)
	defer cancelTask()
	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var buf []byte
	if err := chromedp.Run(taskCtx, chromedp.FullScreenshot(&buf, pngQuality)); err != nil {
		return nil, fmt.Errorf("full screenshot: %w", err)
	}
	return buf, nil
}

// Close closes the tab. Calling it more than once is a no-op.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
