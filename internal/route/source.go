// Package route resolves the routes a run visits, maps them onto artifact
// names, and hands them out to workers through a shared cursor.
package route

import "strings"

// defaultRoutes is the built-in smoke-test set covering top-level and
// parameterized pages.
var defaultRoutes = []string{
	"/",
	"/items",
	"/item/46010",
	"/items/category/Gunbreaker's Arms",
	"/flip-finder",
	"/flip-finder/Gilgamesh",
	"/list",
	"/retainers",
	"/currency-exchange",
	"/history",
	"/settings",
	"/privacy",
	"/cookie-policy",
}

// Defaults returns a copy of the built-in route list.
func Defaults() []string {
	return append([]string(nil), defaultRoutes...)
}

// Resolve returns the routes named by a comma-separated override, trimmed and
// with empty entries dropped. A blank override yields the defaults.
func Resolve(override string) []string {
	if strings.TrimSpace(override) == "" {
		return Defaults()
	}
	parts := strings.Split(override, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
