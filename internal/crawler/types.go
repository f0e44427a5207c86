package crawler

import (
	"time"

	"github.com/JakeFAU/routeshot/internal/device"
)

// WaitUntil names the lifecycle milestone a navigation waits for.
type WaitUntil string

// Readiness criteria understood by Session.Navigate.
const (
	// WaitNetworkIdle fires once the page has had no network activity for 500ms.
	WaitNetworkIdle WaitUntil = "networkIdle"
	// WaitDOMContentLoaded fires once the document has been parsed.
	WaitDOMContentLoaded WaitUntil = "DOMContentLoaded"
)

// Response is the main-document response observed for a navigation.
type Response struct {
	Status int
	URL    string
}

// Artifact describes one persisted capture.
type Artifact struct {
	Route    string         `json:"route"`
	URL      string         `json:"url"`
	Device   device.Profile `json:"device"`
	Path     string         `json:"path"`
	Mirror   string         `json:"mirror,omitempty"`
	Status   int            `json:"status"`
	Relaxed  bool           `json:"relaxed_wait,omitempty"`
	Bytes    int            `json:"bytes"`
	Captured time.Time      `json:"captured_at"`
}

// RunSummary is the aggregate outcome of one run, computed when all workers
// have joined.
type RunSummary struct {
	RunID     string     `json:"run_id"`
	Device    string     `json:"device"`
	BaseURL   string     `json:"base_url"`
	Total     int        `json:"total"`
	Captured  int        `json:"captured"`
	Artifacts []Artifact `json:"artifacts"`
	Started   time.Time  `json:"started_at"`
	Finished  time.Time  `json:"finished_at"`
	Err       error      `json:"-"`
	ErrText   string     `json:"error,omitempty"`
}

// Succeeded reports whether the run finished without a fatal error.
func (s RunSummary) Succeeded() bool {
	return s.Err == nil
}

// ExitCode maps the summary onto the process exit status.
func (s RunSummary) ExitCode() int {
	if s.Succeeded() {
		return 0
	}
	return 1
}
