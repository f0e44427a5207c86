package headless

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"

	"github.com/JakeFAU/routeshot/internal/crawler"
)

// loadState is what has been observed for one document loader.
type loadState struct {
	milestones map[string]struct{}
	response   *crawler.Response
}

// loadTracker records lifecycle milestones and main-document responses per
// loader so Navigate can wait on the loader it started. Events arrive on the
// chromedp listener goroutine and must never block it.
type loadTracker struct {
	mu      sync.Mutex
	loads   map[string]*loadState
	changed chan struct{}
}

func newLoadTracker() *loadTracker {
	return &loadTracker{
		loads:   make(map[string]*loadState),
		changed: make(chan struct{}, 1),
	}
}

func (t *loadTracker) observe(ev any) {
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		t.milestone(string(e.LoaderID), e.Name)
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		t.record(string(e.LoaderID), int(e.Response.Status), e.Response.URL)
	}
}

func (t *loadTracker) reset() {
	t.mu.Lock()
	t.loads = make(map[string]*loadState)
	t.mu.Unlock()
}

func (t *loadTracker) state(loaderID string) *loadState {
	st, ok := t.loads[loaderID]
	if !ok {
		st = &loadState{milestones: make(map[string]struct{})}
		t.loads[loaderID] = st
	}
	return st
}

func (t *loadTracker) milestone(loaderID, name string) {
	if loaderID == "" {
		return
	}
	t.mu.Lock()
	t.state(loaderID).milestones[name] = struct{}{}
	t.mu.Unlock()
	t.notify()
}

func (t *loadTracker) record(loaderID string, status int, url string) {
	if loaderID == "" {
		return
	}
	t.mu.Lock()
	st := t.state(loaderID)
	if st.response == nil {
		st.response = &crawler.Response{Status: status, URL: url}
	}
	t.mu.Unlock()
	t.notify()
}

func (t *loadTracker) notify() {
	select {
	case t.changed <- struct{}{}:
	default:
	}
}

func (t *loadTracker) reached(loaderID, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.loads[loaderID]
	if !ok {
		return false
	}
	_, ok = st.milestones[name]
	return ok
}

// wait blocks until loaderID has fired the named milestone or ctx ends.
func (t *loadTracker) wait(ctx context.Context, loaderID, name string) error {
	for {
		if t.reached(loaderID, name) {
			return nil
		}
		select {
		case <-t.changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *loadTracker) response(loaderID string) *crawler.Response {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.loads[loaderID]
	if !ok || st.response == nil {
		return nil
	}
	resp := *st.response
	return &resp
}
