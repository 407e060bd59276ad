// Package semver implements the community-standard version and range
// grammar used by the JavaScript package ecosystem: exact versions,
// wildcard/x-ranges, hyphen ranges, caret and tilde ranges, comparator
// sets joined by whitespace, and alternatives joined by "||".
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed semantic version: major.minor.patch[-prerelease][+build].
// Build metadata is retained for display but never affects comparison.
type Version struct {
	Major, Minor, Patch int
	Prerelease          []string
	Build               string
	raw                 string
}

// String returns the original parsed text.
func (v Version) String() string {
	if v.raw != "" {
		return v.raw
	}
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.Prerelease) > 0 {
		s += "-" + strings.Join(v.Prerelease, ".")
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// InvalidVersionError reports that a version token could not be parsed.
type InvalidVersionError struct {
	Input string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version: %q", e.Input)
}

// Parse parses a strict major.minor.patch version, tolerating a leading "v"
// and build metadata but nothing looser than that; use Coerce for lenient
// extraction from arbitrary strings.
func Parse(s string) (Version, error) {
	raw := s
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "v")
	if s == "" {
		return Version{}, &InvalidVersionError{Input: raw}
	}

	var build string
	if i := strings.IndexByte(s, '+'); i >= 0 {
		build = s[i+1:]
		s = s[:i]
	}

	var prerelease []string
	if i := strings.IndexByte(s, '-'); i >= 0 {
		pre := s[i+1:]
		s = s[:i]
		prerelease = strings.Split(pre, ".")
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, &InvalidVersionError{Input: raw}
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, &InvalidVersionError{Input: raw}
		}
		nums[i] = n
	}

	return Version{
		Major:      nums[0],
		Minor:      nums[1],
		Patch:      nums[2],
		Prerelease: prerelease,
		Build:      build,
		raw:        raw,
	}, nil
}

// Coerce extracts the first M[.m[.p]] substring from s and zero-pads the
// missing components, returning nil if no digit sequence is found.
func Coerce(s string) *Version {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}

	rest := s[start:]
	var b strings.Builder
	dots := 0
	for _, r := range rest {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '.' && dots < 2 {
			// Only keep the dot if followed eventually by a digit run; a
			// trailing dot with nothing numeric after it is dropped below.
			b.WriteRune(r)
			dots++
			continue
		}
		break
	}
	candidate := strings.TrimRight(b.String(), ".")
	if candidate == "" {
		return nil
	}

	parts := strings.Split(candidate, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	if len(parts) > 3 {
		parts = parts[:3]
	}

	v, err := Parse(strings.Join(parts, "."))
	if err != nil {
		return nil
	}
	return &v
}

// Compare returns -1, 0, or 1 per the usual ordering: numeric
// major/minor/patch first, then pre-release identifiers (a version with a
// pre-release always sorts below the same version without one), comparing
// pre-release identifiers numerically when both are numeric and
// lexically (ASCII) otherwise.
func Compare(a, b Version) int {
	if c := compareInt(a.Major, b.Major); c != 0 {
		return c
	}
	if c := compareInt(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := compareInt(a.Patch, b.Patch); c != 0 {
		return c
	}
	return comparePrerelease(a.Prerelease, b.Prerelease)
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func comparePrerelease(a, b []string) int {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 {
		return 1 // no prerelease > has prerelease
	}
	if len(b) == 0 {
		return -1
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareIdentifier(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInt(len(a), len(b))
}

func compareIdentifier(a, b string) int {
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		return compareInt(an, bn)
	}
	if aErr == nil {
		return -1 // numeric identifiers sort lower than alphanumeric
	}
	if bErr == nil {
		return 1
	}
	return strings.Compare(a, b)
}

func GT(a, b Version) bool  { return Compare(a, b) > 0 }
func GTE(a, b Version) bool { return Compare(a, b) >= 0 }
func LT(a, b Version) bool  { return Compare(a, b) < 0 }
func LTE(a, b Version) bool { return Compare(a, b) <= 0 }
func EQ(a, b Version) bool  { return Compare(a, b) == 0 }
