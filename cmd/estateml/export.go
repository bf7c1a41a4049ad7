package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/estateml/estateml/tracking"
	"github.com/estateml/estateml/training"
)

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <run-name> <dir>",
		Short: "Copy the artifact of a recorded run to a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, dst := args[0], args[1]

			store := a.store()
			tracker, release, err := a.openTracker(ctx)
			if err != nil {
				return err
			}
			defer release()
			if lister, ok := tracker.(tracking.RunLister); ok {
				run, err := lister.GetRun(ctx, a.cfg.Training.Experiment, name)
				if err != nil {
					return err
				}
				if run.ArtifactURI != "" {
					store = training.NewFSStore(filepath.Dir(run.ArtifactURI))
				}
			}

			if err := store.Export(ctx, name, dst); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", name, dst)
			return nil
		},
	}
}
