package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"worldline/internal/id"
	"worldline/internal/world"
)

func stateCmd() *cobra.Command {
	var at int64
	var direction string
	cmd := &cobra.Command{
		Use:   "state <subject-id>",
		Short: "Replay an entity's or relationship's attributes as of a story time",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			subjectID := args[0]
			var st *world.State
			var err error
			if id.KindOf(subjectID) == id.KindRelationship {
				st, err = e.svc.ComputeRelationshipState(ctx, worldID, subjectID, at, world.Direction(direction))
			} else {
				st, err = e.svc.ComputeState(ctx, worldID, subjectID, at)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(st)
			}
			if len(st.Attributes) == 0 {
				fmt.Fprintf(os.Stdout, "%s has no state at t=%d.\n", subjectID, at)
				return nil
			}
			fmt.Fprintf(os.Stdout, "%s at t=%d", subjectID, at)
			if st.Direction != "" {
				fmt.Fprintf(os.Stdout, " (%s)", st.Direction)
			}
			fmt.Fprintln(os.Stdout, ":")
			printAttributes(os.Stdout, st.Attributes)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&at, "at", 0, "Story time to replay up to, inclusive")
	cmd.Flags().StringVar(&direction, "direction", string(world.FromTo), "from_to or to_from, relationships only")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}
