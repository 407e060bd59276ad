// Package errs defines the typed error taxonomy shared across pkgforge's
// resolver, placer, and reifier so callers can branch with errors.As
// instead of string matching.
package errs

import "fmt"

// InvalidVersionError reports that C1 could not parse a version token.
type InvalidVersionError struct {
	Input string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Input)
}

// UnsupportedAlgorithmError reports a hash request for an algorithm C2
// does not support.
type UnsupportedAlgorithmError struct {
	Algorithm string
}

func (e *UnsupportedAlgorithmError) Error() string {
	return fmt.Sprintf("unsupported integrity algorithm %q", e.Algorithm)
}

// IntegrityMismatchError reports that downloaded bytes failed verify.
type IntegrityMismatchError struct {
	Name, Version, Expected string
}

func (e *IntegrityMismatchError) Error() string {
	return fmt.Sprintf("integrity mismatch for %s@%s: expected %s", e.Name, e.Version, e.Expected)
}

// PackageNotFoundError reports a 404 from the registry for a package name.
type PackageNotFoundError struct {
	Name string
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("package not found: %s", e.Name)
}

// RegistryError reports any other HTTP or decode failure talking to the
// registry.
type RegistryError struct {
	Name string
	Op   string
	Err  error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry error fetching %s (%s): %v", e.Name, e.Op, e.Err)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// ResolveError reports that no version in a packument satisfies an edge.
type ResolveError struct {
	Name, Range string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("no version of %s satisfies %q", e.Name, e.Range)
}

// PlacementConflictError reports a CONFLICT decision with no ancestor
// willing to accept the node.
type PlacementConflictError struct {
	Name, Version string
	ConflictName  string
}

func (e *PlacementConflictError) Error() string {
	return fmt.Sprintf("cannot place %s@%s: conflicts with %s", e.Name, e.Version, e.ConflictName)
}

// LockfileError reports a malformed lockfile; the operation must abort
// before any disk mutation.
type LockfileError struct {
	Path string
	Err  error
}

func (e *LockfileError) Error() string {
	return fmt.Sprintf("malformed lockfile %s: %v", e.Path, e.Err)
}

func (e *LockfileError) Unwrap() error { return e.Err }

// ReifyError reports a fatal failure during the reifier's download phase:
// any single tarball fetch failing in that batch aborts the whole reify.
type ReifyError struct {
	Name, Version string
	Err           error
}

func (e *ReifyError) Error() string {
	return fmt.Sprintf("reify failed downloading %s@%s: %v", e.Name, e.Version, e.Err)
}

func (e *ReifyError) Unwrap() error { return e.Err }

// FilesystemError reports an I/O failure during extract/link/remove.
type FilesystemError struct {
	Path string
	Op   string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error during %s on %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
