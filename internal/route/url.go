package route

import (
	"fmt"
	"net/url"
)

// ParseBase parses the origin routes are resolved against.
func ParseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", raw)
	}
	return u, nil
}

// ResolveURL resolves r against base the way a browser resolves a link.
// Characters such as spaces are escaped; the raw route is what names files.
func ResolveURL(base *url.URL, r string) (string, error) {
	ref, err := url.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse route %q: %w", r, err)
	}
	return base.ResolveReference(ref).String(), nil
}
