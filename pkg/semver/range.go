package semver

import (
	"strconv"
	"strings"
)

// comparator is a single operator+version constraint, e.g. ">=1.2.3".
type comparator struct {
	op      string // "", "=", ">", ">=", "<", "<="
	version Version
}

func (c comparator) matches(v Version) bool {
	switch c.op {
	case "", "=":
		return EQ(v, c.version)
	case ">":
		return GT(v, c.version)
	case ">=":
		return GTE(v, c.version)
	case "<":
		return LT(v, c.version)
	case "<=":
		return LTE(v, c.version)
	}
	return false
}

// comparatorSet is a conjunction ("AND") of comparators, the unit
// separated by "||" in a range string.
type comparatorSet []comparator

func (set comparatorSet) matches(v Version) bool {
	for _, c := range set {
		if !c.matches(v) {
			return false
		}
	}
	return true
}

// Range is a disjunction ("OR") of comparator sets.
type Range struct {
	sets      []comparatorSet
	raw       string
	alwaysOK  bool // "*", "", "latest", tags, url/git specs
	exactText string
}

// ParseRange parses a version range per spec.md §4.1. A malformed range is
// never an error: per the spec, malformed ranges degrade to an exact-string
// match against the version text.
func ParseRange(r string) (*Range, error) {
	r = strings.TrimSpace(r)

	rng := &Range{raw: r}

	if r == "" || r == "*" || r == "latest" {
		rng.alwaysOK = true
		return rng, nil
	}

	// npm: / workspace: protocol prefixes strip to their tail range.
	if stripped, ok := stripProtocol(r, "npm:"); ok {
		_, tail := splitAliasTarget(stripped)
		return ParseRange(tail)
	}
	if _, ok := stripProtocol(r, "workspace:"); ok {
		rng.alwaysOK = true
		return rng, nil
	}

	// git-like, url-like, and single-token tag specs are always-satisfied
	// for edge validity; resolution happens through another channel.
	if looksLikeURLOrGitOrTag(r) {
		rng.alwaysOK = true
		return rng, nil
	}

	orParts := strings.Split(r, "||")
	sets := make([]comparatorSet, 0, len(orParts))
	for _, part := range orParts {
		set, err := parseComparatorSet(strings.TrimSpace(part))
		if err != nil {
			// Malformed range: fall back to exact-string match.
			return &Range{raw: r, exactText: r}, nil
		}
		sets = append(sets, set)
	}
	rng.sets = sets
	return rng, nil
}

func stripProtocol(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

// splitAliasTarget splits "name@range" (possibly "@scope/name@range") into
// the registry name and the range tail. If no version tail is present the
// range defaults to "*".
func splitAliasTarget(s string) (name, rangeTail string) {
	if strings.HasPrefix(s, "@") {
		// @scope/name@range
		secondSlash := strings.Index(s, "/")
		if secondSlash == -1 {
			return s, "*"
		}
		rest := s[secondSlash+1:]
		at := strings.Index(rest, "@")
		if at == -1 {
			return s, "*"
		}
		return s[:secondSlash+1+at], rest[at+1:]
	}
	at := strings.Index(s, "@")
	if at == -1 {
		return s, "*"
	}
	return s[:at], s[at+1:]
}

func looksLikeURLOrGitOrTag(r string) bool {
	for _, p := range []string{"git+", "git:", "github:", "gitlab:", "bitbucket:", "http://", "https://", "file:"} {
		if strings.HasPrefix(r, p) {
			return true
		}
	}
	// A bare single token with no leading digit and no range operators is
	// treated as a dist-tag (e.g. "latest", "next", "beta") — always
	// satisfied for edge validity; the tag itself is resolved elsewhere.
	if !strings.ContainsAny(r, " <>=^~|*.") && !hasLeadingDigit(r) {
		return true
	}
	return false
}

func hasLeadingDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

func parseComparatorSet(s string) (comparatorSet, error) {
	if s == "" || s == "*" {
		return comparatorSet{}, nil
	}

	// Hyphen range: "a - b"
	if parts := strings.SplitN(s, " - ", 2); len(parts) == 2 {
		lo, err := parseXRangeFloor(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, err
		}
		hi, err := parseXRangeCeil(strings.TrimSpace(parts[1]), true)
		if err != nil {
			return nil, err
		}
		return comparatorSet{
			{op: ">=", version: lo},
			hi,
		}, nil
	}

	fields := strings.Fields(s)
	var set comparatorSet
	for _, f := range fields {
		cs, err := parseToken(f)
		if err != nil {
			return nil, err
		}
		set = append(set, cs...)
	}
	return set, nil
}

// parseToken expands a single whitespace-delimited token (caret, tilde,
// x-range, or a plain comparator) into one or two comparators.
func parseToken(tok string) ([]comparator, error) {
	switch {
	case strings.HasPrefix(tok, "^"):
		return caretRange(tok[1:])
	case strings.HasPrefix(tok, "~"):
		return tildeRange(tok[1:])
	case strings.HasPrefix(tok, ">="):
		v, err := parseXRangeFloor(tok[2:])
		if err != nil {
			return nil, err
		}
		return []comparator{{op: ">=", version: v}}, nil
	case strings.HasPrefix(tok, "<="):
		v, err := parseXRangeFloor(tok[2:])
		if err != nil {
			return nil, err
		}
		return []comparator{{op: "<=", version: v}}, nil
	case strings.HasPrefix(tok, ">"):
		v, err := parseXRangeFloor(tok[1:])
		if err != nil {
			return nil, err
		}
		return []comparator{{op: ">", version: v}}, nil
	case strings.HasPrefix(tok, "<"):
		v, err := parseXRangeFloor(tok[1:])
		if err != nil {
			return nil, err
		}
		return []comparator{{op: "<", version: v}}, nil
	case strings.HasPrefix(tok, "="):
		return xRangeEquals(tok[1:])
	default:
		return xRangeEquals(tok)
	}
}

// xRangeEquals expands a bare version, possibly with x/*/omitted
// components, into the equivalent comparator(s).
func xRangeEquals(tok string) ([]comparator, error) {
	maj, min, pat, wild := splitXRange(tok)
	if !wild {
		v, err := Parse(tok)
		if err != nil {
			return nil, err
		}
		return []comparator{{op: "=", version: v}}, nil
	}
	lo := Version{Major: maj, Minor: zeroIfWild(min), Patch: zeroIfWild(pat)}
	var hi comparator
	switch {
	case min == -1: // "1" or "1.x"
		hi = comparator{op: "<", version: Version{Major: maj + 1}}
	case pat == -1: // "1.2" or "1.2.x"
		hi = comparator{op: "<", version: Version{Major: maj, Minor: min + 1}}
	default:
		hi = comparator{op: "<", version: Version{Major: maj, Minor: min, Patch: pat + 1}}
	}
	return []comparator{{op: ">=", version: lo}, hi}, nil
}

func zeroIfWild(n int) int {
	if n == -1 {
		return 0
	}
	return n
}

// splitXRange parses "1", "1.x", "1.2", "1.2.x", "1.2.3" into
// (major, minor, patch) where an omitted or wildcard component is -1, and
// reports whether any wildcard/omission was present.
func splitXRange(tok string) (maj, min, pat int, wild bool) {
	min, pat = -1, -1
	parts := strings.Split(tok, ".")
	if len(parts) >= 1 {
		maj, wild = parseXComponent(parts[0])
	}
	if len(parts) >= 2 {
		var w2 bool
		min, w2 = parseXComponent(parts[1])
		wild = wild || w2
	} else {
		wild = true
	}
	if len(parts) >= 3 {
		var w3 bool
		pat, w3 = parseXComponent(parts[2])
		wild = wild || w3
	} else {
		wild = true
	}
	return
}

func parseXComponent(s string) (int, bool) {
	if s == "x" || s == "X" || s == "*" || s == "" {
		return -1, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1, true
	}
	return n, false
}

// parseXRangeFloor resolves a possibly-wildcarded version to its lowest
// concrete value, used as the floor of a comparator.
func parseXRangeFloor(tok string) (Version, error) {
	maj, min, pat, _ := splitXRange(tok)
	return Version{Major: maj, Minor: zeroIfWild(min), Patch: zeroIfWild(pat)}, nil
}

// parseXRangeCeil resolves the upper bound of a hyphen range's right-hand
// side: an omitted component widens the bound to "less than the next
// value at that precision", per the x-range semantics; inclusive controls
// whether a fully concrete version uses "<=" instead.
func parseXRangeCeil(tok string, inclusive bool) (comparator, error) {
	maj, min, pat, wild := splitXRange(tok)
	if !wild {
		v := Version{Major: maj, Minor: min, Patch: pat}
		if inclusive {
			return comparator{op: "<=", version: v}, nil
		}
		return comparator{op: "<", version: v}, nil
	}
	switch {
	case min == -1:
		return comparator{op: "<", version: Version{Major: maj + 1}}, nil
	case pat == -1:
		return comparator{op: "<", version: Version{Major: maj, Minor: min + 1}}, nil
	default:
		return comparator{op: "<=", version: Version{Major: maj, Minor: min, Patch: pat}}, nil
	}
}

// caretRange expands "^X.Y.Z" per spec.md §4.1's three cases.
func caretRange(tok string) ([]comparator, error) {
	maj, min, pat, wild := splitXRange(tok)
	if wild {
		return xRangeEquals(tok) // caret on a partial version behaves like the x-range itself
	}
	lo := Version{Major: maj, Minor: min, Patch: pat}
	var hiVer Version
	switch {
	case maj >= 1:
		hiVer = Version{Major: maj + 1}
	case min >= 1:
		hiVer = Version{Major: 0, Minor: min + 1}
	default:
		hiVer = Version{Major: 0, Minor: 0, Patch: pat + 1}
	}
	return []comparator{
		{op: ">=", version: lo},
		{op: "<", version: hiVer},
	}, nil
}

// tildeRange expands "~X.Y.Z" per spec.md §4.1.
func tildeRange(tok string) ([]comparator, error) {
	maj, min, pat, wild := splitXRange(tok)
	if wild {
		return xRangeEquals(tok)
	}
	lo := Version{Major: maj, Minor: min, Patch: pat}
	hiVer := Version{Major: maj, Minor: min + 1}
	return []comparator{
		{op: ">=", version: lo},
		{op: "<", version: hiVer},
	}, nil
}

// Satisfies reports whether v satisfies the range.
func (r *Range) Satisfies(v Version) bool {
	if r.alwaysOK {
		return true
	}
	if r.exactText != "" {
		return v.String() == r.exactText
	}
	for _, set := range r.sets {
		if set.matches(v) {
			return true
		}
	}
	return false
}

// Satisfies is a convenience wrapper that parses both arguments and
// evaluates the range against the version; see ParseRange for prefix and
// malformed-range handling.
func Satisfies(version, rangeStr string) (bool, error) {
	v, err := Parse(version)
	if err != nil {
		return false, err
	}
	r, err := ParseRange(rangeStr)
	if err != nil {
		return false, err
	}
	return r.Satisfies(v), nil
}

// MaxSatisfying returns the greatest version in versions that satisfies
// rangeStr, or nil if none does.
func MaxSatisfying(versions []string, rangeStr string) (*Version, error) {
	r, err := ParseRange(rangeStr)
	if err != nil {
		return nil, err
	}
	var best *Version
	for _, vs := range versions {
		v, err := Parse(vs)
		if err != nil {
			continue
		}
		if !r.Satisfies(v) {
			continue
		}
		if best == nil || GT(v, *best) {
			vv := v
			best = &vv
		}
	}
	return best, nil
}
