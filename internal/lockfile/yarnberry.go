package lockfile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// yarnEntry is one parsed yarn-berry lockfile block: the raw
// comma-separated descriptor keys plus its body fields.
type yarnEntry struct {
	descriptors []string // "<name>@<protocol>:<range>", scoped names keep their "@"
	resolution  string   // "name@npm:version"
	dependencies map[string]string
	peerDependencies map[string]string
	checksum     string
}

// ParseYarnBerry parses a yarn.lock (Berry/v2+ SYML dialect) into
// canonical form. rootDeps is the union of the project manifest's three
// dependency maps (dependencies, devDependencies, optionalDependencies)
// — the lockfile alone never distinguishes "declared directly by root"
// from "pulled in transitively", so the BFS hoisting pass spec.md §4.7
// describes has to start from the manifest's own declared edges, not
// from anything inferable out of the yarn.lock body. Entries whose
// resolution uses a non-npm protocol (workspace:, patch:, portal:) are
// preserved opaquely: they are parsed but excluded from the canonical
// Packages map, since placement has no registry version to hoist for
// them.
func ParseYarnBerry(data []byte, rootDeps map[string]string) (*Canonical, error) {
	entries, metadata, err := parseYarnBlocks(string(data))
	if err != nil {
		return nil, err
	}

	c := &Canonical{LockfileVersion: 0, Packages: map[string]*Entry{"": {Version: metadata["version"]}}}

	byDescriptor := make(map[string]*yarnEntry)
	for _, e := range entries {
		for _, d := range e.descriptors {
			byDescriptor[d] = e
		}
	}

	hoistYarnEntries(c, byDescriptor, rootDeps)
	return c, nil
}

// hoistYarnEntries runs the deterministic BFS hoisting pass: starting
// from the root's dependency set, place each dep at
// "node_modules/<name>" if that slot is free, else nest it under the
// location of whichever entry is currently requesting it.
func hoistYarnEntries(c *Canonical, byDescriptor map[string]*yarnEntry, rootDeps map[string]string) {
	type queueItem struct {
		parentLocation string
		name           string
		rangeSpec      string
	}

	var queue []queueItem
	names := make([]string, 0, len(rootDeps))
	for name := range rootDeps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		queue = append(queue, queueItem{parentLocation: "", name: name, rangeSpec: rootDeps[name]})
	}

	visited := make(map[string]bool) // descriptor strings already placed

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		descriptor := item.name + "@npm:" + item.rangeSpec
		e, ok := byDescriptor[descriptor]
		if !ok {
			continue
		}
		if visited[descriptor] {
			continue
		}
		visited[descriptor] = true

		version := resolutionVersion(e.resolution)
		location := joinNodeModules("", item.name)
		if _, taken := c.Packages[location]; taken {
			location = joinNodeModules(item.parentLocation, item.name)
		}

		c.Packages[location] = &Entry{
			Version:          version,
			Dependencies:     e.dependencies,
			PeerDependencies: e.peerDependencies,
			Integrity:        e.checksum,
		}

		depNames := make([]string, 0, len(e.dependencies))
		for depName := range e.dependencies {
			depNames = append(depNames, depName)
		}
		sort.Strings(depNames)
		for _, depName := range depNames {
			queue = append(queue, queueItem{parentLocation: location, name: depName, rangeSpec: e.dependencies[depName]})
		}
	}
}

func resolutionVersion(resolution string) string {
	at := strings.LastIndex(resolution, "@npm:")
	if at == -1 {
		return resolution
	}
	return resolution[at+len("@npm:"):]
}

// parseYarnBlocks is a small hand-rolled SYML reader: yarn-berry's
// lockfile is YAML-shaped but uses comma-joined, quoted descriptor keys
// that a generic YAML library renders awkwardly to work with, so
// pkgforge reads the handful of constructs it actually emits directly.
func parseYarnBlocks(content string) ([]*yarnEntry, map[string]string, error) {
	lines := strings.Split(content, "\n")
	metadata := map[string]string{}
	var entries []*yarnEntry

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			i++
			continue
		}
		if trimmed == "__metadata:" {
			i++
			for i < len(lines) && strings.HasPrefix(lines[i], "  ") {
				k, v := splitYAMLScalar(lines[i])
				metadata[k] = v
				i++
			}
			continue
		}
		if !strings.HasPrefix(line, " ") {
			// a block header: one or more comma-separated descriptors
			header := strings.TrimSuffix(trimmed, ":")
			descriptors := splitDescriptorList(header)
			entry := &yarnEntry{descriptors: descriptors, dependencies: map[string]string{}, peerDependencies: map[string]string{}}
			i++

			for i < len(lines) && (strings.HasPrefix(lines[i], "  ") || strings.TrimSpace(lines[i]) == "") {
				bodyLine := lines[i]
				bodyTrimmed := strings.TrimSpace(bodyLine)
				if bodyTrimmed == "" {
					i++
					continue
				}
				indent := len(bodyLine) - len(strings.TrimLeft(bodyLine, " "))
				if indent != 2 {
					i++
					continue
				}

				switch {
				case bodyTrimmed == "dependencies:":
					i++
					for i < len(lines) && strings.HasPrefix(lines[i], "    ") {
						k, v := splitYAMLScalar(lines[i])
						entry.dependencies[unquoteYAML(k)] = strings.TrimPrefix(unquoteYAML(v), "npm:")
						i++
					}
				case bodyTrimmed == "peerDependencies:":
					i++
					for i < len(lines) && strings.HasPrefix(lines[i], "    ") {
						k, v := splitYAMLScalar(lines[i])
						entry.peerDependencies[unquoteYAML(k)] = strings.TrimPrefix(unquoteYAML(v), "npm:")
						i++
					}
				default:
					k, v := splitYAMLScalar(bodyLine)
					switch k {
					case "resolution":
						entry.resolution = unquoteYAML(v)
					case "checksum":
						entry.checksum = unquoteYAML(v)
					}
					i++
				}
			}
			entries = append(entries, entry)
			continue
		}
		i++
	}

	return entries, metadata, nil
}

func splitYAMLScalar(line string) (key, value string) {
	trimmed := strings.TrimSpace(line)
	colon := strings.Index(trimmed, ": ")
	if colon == -1 {
		if strings.HasSuffix(trimmed, ":") {
			return strings.TrimSuffix(trimmed, ":"), ""
		}
		return trimmed, ""
	}
	return trimmed[:colon], trimmed[colon+2:]
}

// splitDescriptorList splits a comma-joined, possibly quoted descriptor
// header into individual descriptor strings.
func splitDescriptorList(header string) []string {
	var out []string
	for _, part := range strings.Split(header, ", ") {
		out = append(out, unquoteYAML(strings.TrimSpace(part)))
	}
	return out
}

func unquoteYAML(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if unquoted, err := strconv.Unquote(s); err == nil {
			return unquoted
		}
	}
	return s
}

// mustQuoteYAML reports whether s needs quoting per spec.md §4.7: any
// of the characters :@/#{}[]|>*&!%'" , a leading hyphen, or a string
// that parses entirely as a number.
func mustQuoteYAML(s string) bool {
	if s == "" {
		return true
	}
	if strings.ContainsAny(s, `:@/#{}[]|>*&!%'"`) {
		return true
	}
	if strings.HasPrefix(s, "-") {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}

func quoteYAMLIfNeeded(s string) string {
	if mustQuoteYAML(s) {
		return strconv.Quote(s)
	}
	return s
}

// SerializeYarnBerry emits a canonical lockfile back to yarn-berry's
// SYML dialect: a header comment, a __metadata block, then
// alphabetically-ordered entries keyed by their npm: descriptor.
func SerializeYarnBerry(c *Canonical) ([]byte, error) {
	var b strings.Builder
	b.WriteString("# This file is generated by pkgforge. DO NOT EDIT MANUALLY.\n\n")
	b.WriteString("__metadata:\n")
	fmt.Fprintf(&b, "  version: %s\n", c.Version)
	b.WriteString("  cacheKey: 10\n\n")

	locations := make([]string, 0, len(c.Packages))
	for loc := range c.Packages {
		if loc == "" {
			continue
		}
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	for idx, loc := range locations {
		e := c.Packages[loc]
		name := locationName(loc)
		descriptor := fmt.Sprintf("%s@npm:%s", name, e.Version)
		fmt.Fprintf(&b, "%s:\n", quoteYAMLIfNeeded(descriptor))
		fmt.Fprintf(&b, "  version: %s\n", quoteYAMLIfNeeded(e.Version))
		fmt.Fprintf(&b, "  resolution: %s\n", quoteYAMLIfNeeded(fmt.Sprintf("%s@npm:%s", name, e.Version)))

		if len(e.Dependencies) > 0 {
			b.WriteString("  dependencies:\n")
			depNames := sortedKeys(e.Dependencies)
			for _, d := range depNames {
				fmt.Fprintf(&b, "    %s: %s\n", quoteYAMLIfNeeded(d), quoteYAMLIfNeeded("npm:"+e.Dependencies[d]))
			}
		}
		if len(e.PeerDependencies) > 0 {
			b.WriteString("  peerDependencies:\n")
			depNames := sortedKeys(e.PeerDependencies)
			for _, d := range depNames {
				fmt.Fprintf(&b, "    %s: %s\n", quoteYAMLIfNeeded(d), quoteYAMLIfNeeded("npm:"+e.PeerDependencies[d]))
			}
		}
		if e.Integrity != "" {
			fmt.Fprintf(&b, "  checksum: %s\n", quoteYAMLIfNeeded(e.Integrity))
		}
		b.WriteString("  languageName: node\n")
		b.WriteString("  linkType: hard\n")
		if idx != len(locations)-1 {
			b.WriteString("\n")
		}
	}

	return []byte(b.String()), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// locationName extracts the declared package name from a canonical
// location, e.g. "node_modules/@scope/name" -> "@scope/name".
func locationName(location string) string {
	idx := strings.LastIndex(location, "node_modules/")
	if idx == -1 {
		return location
	}
	return location[idx+len("node_modules/"):]
}
