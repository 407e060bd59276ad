package manifest

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var allDepKinds = []DepKind{Production, Dev, OptionalK, PeerK}

// SaveAdd patches the dependency map named by kind in the package.json at
// path, setting name to rangeSpec. It edits the raw bytes in place via
// sjson so untouched keys keep their original formatting and ordering
// instead of being rewritten by a full json.Marshal round-trip. If name
// is already declared under a different dependency kind, that stale
// declaration is removed first, so a package never ends up double-listed
// the way a bare sjson.SetBytes into only the new kind would leave it —
// matching npm's own move-between-dependency-types behavior on `add`.
func SaveAdd(path string, kind DepKind, name, rangeSpec string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	for _, other := range allDepKinds {
		if other == kind {
			continue
		}
		otherKey := string(other) + "." + sjsonEscape(name)
		if gjson.GetBytes(data, otherKey).Exists() {
			data, err = sjson.DeleteBytes(data, otherKey)
			if err != nil {
				return fmt.Errorf("failed to move %s out of %s: %w", name, other, err)
			}
		}
	}

	key := string(kind) + "." + sjsonEscape(name)
	patched, err := sjson.SetBytes(data, key, rangeSpec)
	if err != nil {
		return fmt.Errorf("failed to add %s to %s: %w", name, kind, err)
	}

	return os.WriteFile(path, patched, 0o644)
}

// SaveRemove deletes name from the dependency map named by kind in the
// package.json at path. A missing key is a no-op.
func SaveRemove(path string, kind DepKind, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	key := string(kind) + "." + sjsonEscape(name)
	patched, err := sjson.DeleteBytes(data, key)
	if err != nil {
		return fmt.Errorf("failed to remove %s from %s: %w", name, kind, err)
	}

	return os.WriteFile(path, patched, 0o644)
}

// sjsonEscape backslash-escapes the characters sjson and gjson treat
// specially in a path ('.', '*', '?', '@', '#', '|') so a scoped name
// like "@scope/name" is used as a single map key rather than a nested
// path or a path modifier.
func sjsonEscape(name string) string {
	escaped := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' || c == '*' || c == '?' || c == '@' || c == '#' || c == '|' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, c)
	}
	return string(escaped)
}
