// Package crawlertest provides scriptable in-memory Browser and Session fakes
// for exercising workers and pools without Chrome.
package crawlertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/device"
)

// Page scripts how a fake session reacts to one URL. The zero value is a
// healthy page answering 200.
type Page struct {
	Status int
	// NoResponse makes navigations succeed without a document response.
	NoResponse bool
	// IdleTimeout makes the network-idle criterion time out.
	IdleTimeout bool
	// DOMTimeout makes the DOMContentLoaded criterion time out too.
	DOMTimeout bool
	// NavErr fails every navigation with this error.
	NavErr error
	// ReadyErr fails the readiness wait.
	ReadyErr error
	// CaptureErr fails the screenshot.
	CaptureErr error
	// Delay is spent inside each navigation, honoring the context.
	Delay time.Duration
}

// NavCall records one Session.Navigate call.
type NavCall struct {
	URL  string
	Wait crawler.WaitUntil
}

// Browser is a fake crawler.Browser whose sessions share one page script.
type Browser struct {
	mu       sync.Mutex
	pages    map[string]Page
	sessions []*Session
	// OpenErr, when set, fails NewSession.
	OpenErr error
	// CloseErr is returned from Close.
	CloseErr error
	closed   bool
}

// NewBrowser creates a fake browser serving pages.
func NewBrowser(pages map[string]Page) *Browser {
	cp := make(map[string]Page, len(pages))
	for k, v := range pages {
		cp[k] = v
	}
	return &Browser{pages: cp}
}

// NewSession implements crawler.Browser.
func (b *Browser) NewSession(ctx context.Context, profile device.Profile) (crawler.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("fake browser closed")
	}
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	s := &Session{browser: b, Profile: profile}
	b.sessions = append(b.sessions, s)
	return s, nil
}

// Close implements crawler.Browser.
func (b *Browser) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.CloseErr
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Sessions returns every session opened so far.
func (b *Browser) Sessions() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Session(nil), b.sessions...)
}

func (b *Browser) page(url string) Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages[url]
}

// Session is a fake crawler.Session.
type Session struct {
	browser *Browser
	Profile device.Profile

	mu       sync.Mutex
	current  string
	navs     []NavCall
	captures int
	closed   int
}

// NewSession returns a standalone session serving pages.
func NewSession(pages map[string]Page) *Session {
	return &Session{browser: NewBrowser(pages), Profile: device.Desktop}
}

// Navigate implements crawler.Session.
func (s *Session) Navigate(
	ctx context.Context,
	url string,
	wait crawler.WaitUntil,
	timeout time.Duration,
) (*crawler.Response, error) {
	s.mu.Lock()
	s.navs = append(s.navs, NavCall{URL: url, Wait: wait})
	s.mu.Unlock()

	p := s.browser.page(url)
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("navigate %s: %w", url, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if p.NavErr != nil {
		return nil, p.NavErr
	}
	if (wait == crawler.WaitNetworkIdle && p.IdleTimeout) || (wait == crawler.WaitDOMContentLoaded && p.DOMTimeout) {
		return nil, fmt.Errorf("%w: %s not reached within %s for %s", crawler.ErrNavigationTimeout, wait, timeout, url)
	}

	s.mu.Lock()
	s.current = url
	s.mu.Unlock()
	if p.NoResponse {
		return nil, nil
	}
	status := p.Status
	if status == 0 {
		status = 200
	}
	return &crawler.Response{Status: status, URL: url}, nil
}

// WaitReady implements crawler.Session.
func (s *Session) WaitReady(ctx context.Context, _ string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.browser.page(s.Current()).ReadyErr
}

// Capture implements crawler.Session. The image is PNG magic followed by the
// current URL, so tests can tell artifacts apart.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url := s.Current()
	if err := s.browser.page(url).CaptureErr; err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.captures++
	s.mu.Unlock()
	return PNG(url), nil
}

// Close implements crawler.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Current returns the URL of the last successful navigation.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Navigations returns every Navigate call in order.
func (s *Session) Navigations() []NavCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NavCall(nil), s.navs...)
}

// Captures returns how many screenshots succeeded.
func (s *Session) Captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

// CloseCount returns how many times Close was called.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PNG returns the fake image bytes captured for url.
func PNG(url string) []byte {
	return append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, url...)
}
