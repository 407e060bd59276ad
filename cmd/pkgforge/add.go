package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pkgforge/pkgforge/internal/manifest"
)

func newAddCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <spec...>",
		Short: "Add one or more packages and install the resulting tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(g)
			if err != nil {
				return err
			}

			parsed := make(map[string]string, len(args))
			for _, raw := range args {
				name, spec, err := ParsePackageSpec(raw)
				if err != nil {
					return fmt.Errorf("add: %w", err)
				}
				parsed[name] = spec
			}

			kind, persist := saveTarget(g)
			if persist {
				manifestPath := filepath.Join(p.dir, "package.json")
				for name, spec := range parsed {
					if err := manifest.SaveAdd(manifestPath, kind, name, spec); err != nil {
						return err
					}
				}
			}

			m := &mutation{apply: func(root *manifest.Manifest) error {
				if !persist {
					applyDeps(root, kind, parsed)
				}
				return nil
			}}
			return p.run(cmd.Context(), m)
		},
	}
}

// applyDeps merges specs into the in-memory manifest's dependency map
// named by kind, used only for --no-save adds since a persisted save
// already lands in the file manifest.Load rereads.
func applyDeps(m *manifest.Manifest, kind manifest.DepKind, specs map[string]string) {
	target := depMap(m, kind)
	for name, spec := range specs {
		target[name] = spec
	}
}

func depMap(m *manifest.Manifest, kind manifest.DepKind) map[string]string {
	switch kind {
	case manifest.Dev:
		if m.DevDependencies == nil {
			m.DevDependencies = map[string]string{}
		}
		return m.DevDependencies
	case manifest.OptionalK:
		if m.OptionalDependencies == nil {
			m.OptionalDependencies = map[string]string{}
		}
		return m.OptionalDependencies
	case manifest.PeerK:
		if m.PeerDependencies == nil {
			m.PeerDependencies = map[string]string{}
		}
		return m.PeerDependencies
	default:
		if m.Dependencies == nil {
			m.Dependencies = map[string]string{}
		}
		return m.Dependencies
	}
}
