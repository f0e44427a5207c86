package sinks

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/routeshot/internal/progress"
)

// BarSink advances a terminal progress bar once per finished route, captured
// or failed.
type BarSink struct {
	bar *progressbar.ProgressBar
}

// NewBarSink creates a bar sized to total routes, drawn on w (stderr when nil).
func NewBarSink(total int, w io.Writer) *BarSink {
	if w == nil {
		w = os.Stderr
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("capturing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("routes"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &BarSink{bar: bar}
}

// Consume advances the bar for each ROUTE_DONE or ROUTE_ERROR event.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	n := 0
	for _, evt := range batch {
		if evt.Stage == progress.StageRouteDone || evt.Stage == progress.StageRouteError {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	if err := s.bar.Add(n); err != nil {
		return fmt.Errorf("advance progress bar: %w", err)
	}
	return nil
}

// Current returns how many routes the bar has counted.
func (s *BarSink) Current() int64 {
	return s.bar.State().CurrentNum
}

// Close terminates the bar line.
func (s *BarSink) Close(context.Context) error {
	if err := s.bar.Close(); err != nil {
		return fmt.Errorf("close progress bar: %w", err)
	}
	return nil
}
