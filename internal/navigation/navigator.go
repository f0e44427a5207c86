// Package navigation implements the two-tier navigation protocol: a strict
// network-idle attempt, then one relaxed DOMContentLoaded attempt when, and
// only when, the strict attempt timed out.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/logging"
)

// NoResponse is the status reported when a navigation produced no response.
const NoResponse = -1

// Outcome is the result of one successful navigation.
type Outcome struct {
	Status      int
	URL         string
	HasResponse bool
	// Relaxed is true when the page was only reached via the fallback criterion.
	Relaxed  bool
	Duration time.Duration
}

// Config controls a Navigator.
type Config struct {
	// Timeout bounds each attempt separately.
	Timeout time.Duration
	// Limiter, when set, is waited on before every attempt.
	Limiter crawler.Limiter
}

// Navigator drives sessions through the navigation protocol. It holds no
// per-visit state and may be shared between workers.
type Navigator struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Navigator.
func New(cfg Config, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{cfg: cfg, logger: logger}
}

// Navigate visits url with sess. The strict attempt waits for network idle; a
// timeout there is retried exactly once with DOMContentLoaded and the same
// timeout. Any other failure, and any relaxed failure, is returned as is.
// A missing response or a status >= 400 yields crawler.ErrBadStatus and is
// never retried.
func (n *Navigator) Navigate(ctx context.Context, sess crawler.Session, url string) (Outcome, error) {
	start := time.Now()
	relaxed := false

	resp, err := n.attempt(ctx, sess, url, crawler.WaitNetworkIdle)
	if err != nil {
		if !n.shouldRelax(ctx, err) {
			return Outcome{}, err
		}
		logging.Warn(n.logger, "networkidle timed out, retrying with domcontentloaded",
			zap.String("url", url), zap.Duration("timeout", n.cfg.Timeout), zap.Error(err))
		relaxed = true
		resp, err = n.attempt(ctx, sess, url, crawler.WaitDOMContentLoaded)
		if err != nil {
			return Outcome{}, fmt.Errorf("relaxed navigation: %w", err)
		}
	}

	out := Outcome{
		Status:   NoResponse,
		URL:      url,
		Relaxed:  relaxed,
		Duration: time.Since(start),
	}
	if resp != nil {
		out.Status = resp.Status
		out.HasResponse = true
		if resp.URL != "" {
			out.URL = resp.URL
		}
	}
	if err := Validate(out, url); err != nil {
		return out, err
	}
	return out, nil
}

func (n *Navigator) attempt(
	ctx context.Context,
	sess crawler.Session,
	url string,
	wait crawler.WaitUntil,
) (*crawler.Response, error) {
	if n.cfg.Limiter != nil {
		if err := n.cfg.Limiter.Wait(ctx, url); err != nil {
			return nil, fmt.Errorf("navigation pacing: %w", err)
		}
	}
	resp, err := sess.Navigate(ctx, url, wait, n.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("navigate (%s): %w", wait, err)
	}
	return resp, nil
}

// shouldRelax reports whether a strict failure earns the single fallback.
// Only timeouts qualify, and never once the caller has given up.
func (n *Navigator) shouldRelax(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, crawler.ErrNavigationTimeout)
}

// Validate rejects outcomes without a response or with an HTTP error status.
func Validate(out Outcome, url string) error {
	if !out.HasResponse {
		return fmt.Errorf("%w %d for %s", crawler.ErrBadStatus, NoResponse, url)
	}
	if out.Status >= http.StatusBadRequest {
		return fmt.Errorf("%w %d for %s", crawler.ErrBadStatus, out.Status, url)
	}
	return nil
}
