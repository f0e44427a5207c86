package route

import (
	"fmt"

	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/device"
)

// DigestLen is how many hex characters of a route digest disambiguate
// colliding artifact names.
const DigestLen = 8

// Spec is one resolved route paired with the run's device profile.
type Spec struct {
	Index  int
	Path   string
	Device device.Profile
	// Name is the sanitized, collision-free artifact stem.
	Name string
}

// FileName returns the artifact file name for the spec.
func (s Spec) FileName() string {
	return FileName(s.Name, s.Device)
}

// Collision records a route whose sanitized name clashed with an earlier one.
type Collision struct {
	Route     string
	Earlier   string
	Sanitized string
	Name      string
}

// BuildSpecs turns routes into Specs. Distinct routes that sanitize to the same
// stem keep the first occurrence's plain name; later ones get a short digest of
// the raw route appended. Identical routes share a name.
func BuildSpecs(routes []string, profile device.Profile, hasher crawler.Hasher) ([]Spec, []Collision, error) {
	specs := make([]Spec, 0, len(routes))
	owner := make(map[string]string, len(routes))
	var collisions []Collision
	for i, r := range routes {
		name := Sanitize(r)
		if first, taken := owner[name]; taken && first != r {
			digest, err := hasher.Hash([]byte(r))
			if err != nil {
				return nil, nil, fmt.Errorf("hash route %q: %w", r, err)
			}
			if len(digest) > DigestLen {
				digest = digest[:DigestLen]
			}
			disambiguated := name + "~" + digest
			collisions = append(collisions, Collision{Route: r, Earlier: first, Sanitized: name, Name: disambiguated})
			name = disambiguated
		} else if !taken {
			owner[name] = r
		}
		specs = append(specs, Spec{Index: i, Path: r, Device: profile, Name: name})
	}
	return specs, collisions, nil
}
