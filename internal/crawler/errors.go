package crawler

import "errors"

// Fatal error kinds. Callers classify with errors.Is.
var (
	// ErrNavigationTimeout means the readiness milestone was not reached in time.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrBadStatus means the navigation produced no response or a status >= 400.
	ErrBadStatus = errors.New("bad status")
	// ErrCapture means the artifact could not be captured or persisted.
	ErrCapture = errors.New("capture failed")
)
