package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkgforge/pkgforge/internal/idealtree"
	"github.com/pkgforge/pkgforge/internal/lockfile"
	"github.com/pkgforge/pkgforge/internal/manifest"
	"github.com/pkgforge/pkgforge/pkg/tree"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the resolved dependency tree without touching disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(g)
			if err != nil {
				return err
			}

			manifestPath, err := manifest.FindManifestPath(p.dir)
			if err != nil {
				return err
			}
			rootManifest, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}

			root := tree.CreateRoot(p.dir, rootManifest)

			canonical, _, err := lockfile.Load(p.dir, rootManifest)
			if err != nil {
				return err
			}
			if canonical != nil {
				lockfile.SeedVirtualTree(root, canonical)
			}
			root.BuildEdges()

			builder := idealtree.NewBuilder(root, p.client, nil)
			if err := builder.Build(cmd.Context()); err != nil {
				return err
			}

			if asJSON {
				return printInventoryJSON(os.Stdout, builder.Inventory)
			}
			return printInventoryTree(os.Stdout, root, 0)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable JSON instead of a tree")
	return cmd
}

func printInventoryTree(w *os.File, n *tree.Node, depth int) error {
	if !n.IsRoot {
		indent := ""
		for i := 0; i < depth; i++ {
			indent += "  "
		}
		tag := ""
		switch {
		case n.Extraneous:
			tag = " (extraneous)"
		case n.Dev:
			tag = " (dev)"
		case n.Optional:
			tag = " (optional)"
		case n.Peer:
			tag = " (peer)"
		}
		fmt.Fprintf(w, "%s%s@%s%s\n", indent, n.Name, n.Version, tag)
	}
	for _, child := range n.Children {
		if err := printInventoryTree(w, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}
