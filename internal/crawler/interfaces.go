package crawler

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/routeshot/internal/device"
)

// Browser is the shared rendering engine. It is only used to spawn sessions.
type Browser interface {
	NewSession(ctx context.Context, profile device.Profile) (Session, error)
	Close(ctx context.Context) error
}

// Session is one independent browsing context owned by a single worker.
type Session interface {
	// Navigate loads url and waits for the given milestone. A nil Response with
	// a nil error means the navigation produced no document response.
	Navigate(ctx context.Context, url string, wait WaitUntil, timeout time.Duration) (*Response, error)
	WaitReady(ctx context.Context, selector string, timeout time.Duration) error
	// Capture returns a full-page PNG of the current document.
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// ArtifactStore writes captures and returns their location.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests used to disambiguate artifact names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Limiter paces navigations.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}
