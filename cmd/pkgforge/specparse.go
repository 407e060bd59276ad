package main

import (
	"fmt"
	"strings"
)

// ParsePackageSpec parses one argument of install/add's spec grammar:
// name | name@range | @scope/name@range | alias@npm:name@range |
// alias@npm:@scope/name@range. It returns the key that belongs under the
// manifest's dependency map and the value to store there — a bare range
// for an ordinary spec, or an "npm:name@range" alias target otherwise.
func ParsePackageSpec(raw string) (name, spec string, err error) {
	if raw == "" {
		return "", "", fmt.Errorf("empty package spec")
	}

	if idx := strings.Index(raw, "@npm:"); idx != -1 {
		alias := raw[:idx]
		if alias == "" {
			return "", "", fmt.Errorf("invalid alias spec %q: missing alias name", raw)
		}
		target := raw[idx+1:]
		if target == "npm:" {
			return "", "", fmt.Errorf("invalid alias spec %q: missing target package", raw)
		}
		return alias, target, nil
	}

	if strings.HasPrefix(raw, "@") {
		rest := raw[1:]
		slash := strings.Index(rest, "/")
		if slash == -1 {
			return "", "", fmt.Errorf("invalid scoped package spec %q", raw)
		}
		afterScope := rest[slash+1:]
		at := strings.Index(afterScope, "@")
		if at == -1 {
			return raw, "latest", nil
		}
		name := raw[:slash+2+at]
		rangeSpec := afterScope[at+1:]
		if rangeSpec == "" {
			rangeSpec = "latest"
		}
		return name, rangeSpec, nil
	}

	at := strings.Index(raw, "@")
	if at == -1 {
		return raw, "latest", nil
	}
	name = raw[:at]
	rangeSpec := raw[at+1:]
	if name == "" {
		return "", "", fmt.Errorf("invalid package spec %q: missing name", raw)
	}
	if rangeSpec == "" {
		rangeSpec = "latest"
	}
	return name, rangeSpec, nil
}
