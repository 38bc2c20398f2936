// internal/version/version.go
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	snaperr "snaptrack/internal/errors"
)

// Bump selects which semver component the next snapshot increments.
type Bump int

const (
	BumpPatch Bump = iota
	BumpMinor
	BumpMajor
)

func (b Bump) String() string {
	switch b {
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	default:
		return "unknown"
	}
}

// Initial is the version assigned by the first save of a tracked file.
var Initial = semver.MustParse("0.1.0")

// Parse parses a dotted-triple version string.
func Parse(s string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", s, err)
	}
	return v, nil
}

// Next computes the version following current for the given bump. A nil
// current means the file has no snapshots yet and yields Initial.
func Next(current *semver.Version, bump Bump) *semver.Version {
	if current == nil {
		return Initial
	}

	var next semver.Version
	switch bump {
	case BumpMajor:
		next = current.IncMajor()
	case BumpMinor:
		next = current.IncMinor()
	default:
		next = current.IncPatch()
	}
	return &next
}

// ValidateAdvance guards manual version overrides: candidate must be
// strictly greater than current under semver ordering.
func ValidateAdvance(path string, current, candidate *semver.Version) error {
	if current == nil {
		return nil
	}
	if !candidate.GreaterThan(current) {
		return snaperr.InvalidBumpSequence(path, current.String(), candidate.String())
	}
	return nil
}
