package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pkgforge/pkgforge/internal/lockfile"
)

var errNoLockfile = fmt.Errorf("no lockfile found: ci requires an existing package-lock.json, npm-shrinkwrap.json, or yarn.lock")

func newInstallCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Resolve and install the dependency tree declared by package.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(g)
			if err != nil {
				return err
			}
			return p.run(cmd.Context(), nil)
		},
	}
}

// newCICmd implements clean-install: remove node_modules first, then
// install strictly from the existing lockfile, refusing to run when no
// lockfile is present.
func newCICmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ci",
		Short: "Install exactly what the lockfile pins, from a clean node_modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(g)
			if err != nil {
				return err
			}

			if path, _ := lockfile.DetectPath(p.dir); path == "" {
				return errNoLockfile
			}

			if err := os.RemoveAll(filepath.Join(p.dir, "node_modules")); err != nil {
				return err
			}

			return p.run(cmd.Context(), nil)
		},
	}
}
