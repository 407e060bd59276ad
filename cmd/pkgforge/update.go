package main

import (
	"github.com/spf13/cobra"
)

func newUpdateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update [name...]",
		Short: "Re-resolve named dependencies (or all of them) to the newest version their range allows",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(g)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return p.run(cmd.Context(), &mutation{pruneAll: true})
			}

			names := make(map[string]bool, len(args))
			for _, n := range args {
				names[n] = true
			}
			return p.run(cmd.Context(), &mutation{invalidate: names})
		},
	}
}
