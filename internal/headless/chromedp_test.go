package headless

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/device"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := map[string]Mode{
		"":         ModeNew,
		"new":      ModeNew,
		"NEW":      ModeNew,
		"true":     ModeTrue,
		"1":        ModeTrue,
		"false":    ModeFalse,
		"0":        ModeFalse,
		"sideways": ModeNew,
	}
	for in, want := range tests {
		require.Equal(t, want, ParseMode(in), "ParseMode(%q)", in)
	}
}

func TestLoadTrackerWaitsForLoader(t *testing.T) {
	t.Parallel()

	tracker := newLoadTracker()
	tracker.observe(&page.EventLifecycleEvent{LoaderID: cdp.LoaderID("old"), Name: "networkIdle"})
	tracker.reset()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		tracker.observe(&page.EventLifecycleEvent{LoaderID: cdp.LoaderID("other"), Name: "networkIdle"})
		tracker.observe(&network.EventResponseReceived{
			LoaderID: cdp.LoaderID("L1"),
			Type:     network.ResourceTypeDocument,
			Response: &network.Response{Status: 201, URL: "http://example.test/a"},
		})
		tracker.observe(&page.EventLifecycleEvent{LoaderID: cdp.LoaderID("L1"), Name: "DOMContentLoaded"})
		tracker.observe(&page.EventLifecycleEvent{LoaderID: cdp.LoaderID("L1"), Name: "networkIdle"})
	}()

	require.NoError(t, tracker.wait(ctx, "L1", "networkIdle"))
	resp := tracker.response("L1")
	require.NotNil(t, resp)
	require.Equal(t, 201, resp.Status)
	require.Nil(t, tracker.response("old"))
}

func TestLoadTrackerIgnoresSubresources(t *testing.T) {
	t.Parallel()

	tracker := newLoadTracker()
	tracker.observe(&network.EventResponseReceived{
		LoaderID: cdp.LoaderID("L1"),
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500},
	})
	tracker.observe(&network.EventResponseReceived{
		LoaderID: cdp.LoaderID("L1"),
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	tracker.observe(&network.EventResponseReceived{
		LoaderID: cdp.LoaderID("L1"),
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404},
	})
	resp := tracker.response("L1")
	require.NotNil(t, resp)
	require.Equal(t, 200, resp.Status)
}

func TestLoadTrackerWaitHonorsContext(t *testing.T) {
	t.Parallel()

	tracker := newLoadTracker()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tracker.wait(ctx, "L1", "networkIdle")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()
	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context was not canceled")
	}
}

func TestBrowserNilSafety(t *testing.T) {
	t.Parallel()

	var b *Browser
	require.NoError(t, b.Close(context.Background()))
	_, err := b.NewSession(context.Background(), device.Desktop)
	require.ErrorIs(t, err, ErrBrowserClosed)
}

// TestChromedpSession drives a real Chrome when one is installed.
func TestChromedpSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<!doctype html><html><body><script>document.body.innerHTML = '<div id="late">late content</div>';</script></body></html>`)
	}))
	defer srv.Close()

	browser, err := NewChromedp(Config{Mode: ModeNew}, zap.NewNop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer func() {
		require.NoError(t, browser.Close(context.Background()))
	}()

	ctx := context.Background()
	sess, err := browser.NewSession(ctx, device.Mobile)
	require.NoError(t, err)
	defer sess.Close() //nolint:errcheck // closed again below

	resp, err := sess.Navigate(ctx, srv.URL+"/ok", crawler.WaitNetworkIdle, 15*time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusOK, resp.Status)

	require.NoError(t, sess.WaitReady(ctx, "#late", 5*time.Second))
	img, err := sess.Capture(ctx)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(img, pngMagic), "capture is not a PNG")

	resp, err = sess.Navigate(ctx, srv.URL+"/missing", crawler.WaitDOMContentLoaded, 15*time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusNotFound, resp.Status)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
}
