package route

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/routeshot/internal/device"
)

const (
	placeholder = '_'
	// RootName is used when a route sanitizes to nothing.
	RootName = "_root"
)

// Sanitize maps a route onto a filesystem-safe name component. Each of
// \ / ? % * : | " < > becomes '_' and runs of '_' collapse into one. A route
// with nothing left but separators (such as "/") maps to RootName.
func Sanitize(route string) string {
	var b strings.Builder
	b.Grow(len(route))
	prev := false
	for _, r := range route {
		if isReserved(r) {
			r = placeholder
		}
		if r == placeholder {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 || b.String() == string(placeholder) {
		return RootName
	}
	return b.String()
}

func isReserved(r rune) bool {
	switch r {
	case '\\', '/', '?', '%', '*', ':', '|', '"', '<', '>':
		return true
	}
	return false
}

// FileName builds the artifact file name for a sanitized route and device.
func FileName(name string, profile device.Profile) string {
	return fmt.Sprintf("%s-%s.png", name, profile)
}
