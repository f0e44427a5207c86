// Package device describes the viewport profiles a capture run can emulate.
package device

import "strings"

// Profile is the closed set of device classes a run can target.
type Profile string

// Supported device profiles.
const (
	Desktop Profile = "desktop"
	Mobile  Profile = "mobile"
)

// Viewport is the emulated screen for a profile.
type Viewport struct {
	Width       int64
	Height      int64
	ScaleFactor float64
	Mobile      bool
	Touch       bool
}

var viewports = map[Profile]Viewport{
	Desktop: {Width: 1280, Height: 800, ScaleFactor: 1},
	Mobile:  {Width: 390, Height: 844, ScaleFactor: 2, Mobile: true, Touch: true},
}

// Parse maps free-form input onto a Profile. Anything starting with "m" is
// treated as mobile; everything else, including the empty string, is desktop.
func Parse(raw string) Profile {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "m") {
		return Mobile
	}
	return Desktop
}

// Viewport returns the emulated screen for p. Unknown values fall back to desktop.
func (p Profile) Viewport() Viewport {
	if vp, ok := viewports[p]; ok {
		return vp
	}
	return viewports[Desktop]
}

// String implements fmt.Stringer.
func (p Profile) String() string {
	if _, ok := viewports[p]; !ok {
		return string(Desktop)
	}
	return string(p)
}
