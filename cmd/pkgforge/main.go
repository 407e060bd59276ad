// Command pkgforge resolves, places, and installs a JavaScript-ecosystem
// dependency graph onto the local filesystem: it reads package.json,
// talks to an npm-compatible registry, computes a tree satisfying every
// declared version constraint, reconciles it with whatever is already
// installed, and persists a lockfile that pins the result.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkgforge/pkgforge/internal/errs"
)

// globalFlags holds the persistent flags every subcommand shares:
// registry override and the exclusive save-destination group spec.md §6
// names.
type globalFlags struct {
	dir      string
	registry string

	save         bool
	saveDev      bool
	saveOptional bool
	savePeer     bool
	noSave       bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "pkgforge",
		Short:         "Resolve, place, and install a JavaScript dependency tree",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.dir, "prefix", "C", ".", "project directory")
	root.PersistentFlags().StringVar(&g.registry, "registry", "", "registry base URL, overriding config")
	root.PersistentFlags().BoolVar(&g.save, "save", true, "save added packages to dependencies")
	root.PersistentFlags().BoolVar(&g.saveDev, "save-dev", false, "save added packages to devDependencies")
	root.PersistentFlags().BoolVar(&g.saveOptional, "save-optional", false, "save added packages to optionalDependencies")
	root.PersistentFlags().BoolVar(&g.savePeer, "save-peer", false, "save added packages to peerDependencies")
	root.PersistentFlags().BoolVar(&g.noSave, "no-save", false, "do not modify package.json")

	root.AddCommand(
		newInstallCmd(g),
		newCICmd(g),
		newAddCmd(g),
		newRemoveCmd(g),
		newUpdateCmd(g),
		newListCmd(g),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

// formatError appends the remediation spec.md §7 asks for to whichever
// typed error taxonomy member caused the failure.
func formatError(err error) string {
	var (
		resolveErr   *errs.ResolveError
		conflictErr  *errs.PlacementConflictError
		notFoundErr  *errs.PackageNotFoundError
		registryErr  *errs.RegistryError
		integrityErr *errs.IntegrityMismatchError
		lockfileErr  *errs.LockfileError
	)

	switch {
	case errors.As(err, &resolveErr):
		return fmt.Sprintf("pkgforge: %v (try a wider range, or rerun after clearing the packument cache)", err)
	case errors.As(err, &conflictErr):
		return fmt.Sprintf("pkgforge: %v (conflicting package %s; remove or pin one side)", err, conflictErr.ConflictName)
	case errors.As(err, &notFoundErr):
		return fmt.Sprintf("pkgforge: %v (check the package name and registry URL)", err)
	case errors.As(err, &registryErr):
		return fmt.Sprintf("pkgforge: %v (retry, or check network/registry availability)", err)
	case errors.As(err, &integrityErr):
		return fmt.Sprintf("pkgforge: %v (clear the tarball cache and reinstall)", err)
	case errors.As(err, &lockfileErr):
		return fmt.Sprintf("pkgforge: %v (the lockfile is malformed; delete it and reinstall)", err)
	default:
		return fmt.Sprintf("pkgforge: %v", err)
	}
}
