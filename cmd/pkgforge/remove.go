package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pkgforge/pkgforge/internal/manifest"
)

func newRemoveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name...>",
		Short: "Remove one or more packages and install the resulting tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(g)
			if err != nil {
				return err
			}

			_, persist := saveTarget(g)
			if persist {
				manifestPath := filepath.Join(p.dir, "package.json")
				for _, name := range args {
					for _, kind := range []manifest.DepKind{manifest.Production, manifest.Dev, manifest.OptionalK, manifest.PeerK} {
						if err := manifest.SaveRemove(manifestPath, kind, name); err != nil {
							return err
						}
					}
				}
			}

			m := &mutation{apply: func(root *manifest.Manifest) error {
				if !persist {
					removeDeps(root, args)
				}
				return nil
			}}
			return p.run(cmd.Context(), m)
		},
	}
}

func removeDeps(m *manifest.Manifest, names []string) {
	for _, maps := range []map[string]string{m.Dependencies, m.DevDependencies, m.OptionalDependencies, m.PeerDependencies} {
		for _, name := range names {
			delete(maps, name)
		}
	}
}
