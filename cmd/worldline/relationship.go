package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"worldline/internal/world"
)

func relationshipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "relationship",
		Aliases: []string{"rel"},
		Short:   "Create and manage relationships between entities",
	}
	cmd.AddCommand(relationshipCreateCmd())
	cmd.AddCommand(relationshipListCmd())
	cmd.AddCommand(relationshipShowCmd())
	cmd.AddCommand(relationshipEndCmd())
	cmd.AddCommand(relationshipUndoEndCmd())
	cmd.AddCommand(relationshipDeleteCmd())
	cmd.AddCommand(relationshipNeighboursCmd())
	return cmd
}

func relationshipCreateCmd() *cobra.Command {
	var in world.RelationshipInput
	cmd := &cobra.Command{
		Use:   "create <from-id> <type> <to-id>",
		Short: "Relate two live entities",
		Args:  cobra.ExactArgs(3),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			in.FromID, in.TypeID, in.ToID = args[0], args[1], args[2]
			if e.schema != nil && !e.schema.IsValidRelationshipType(in.TypeID) {
				return fmt.Errorf("unknown relationship type %q", in.TypeID)
			}
			rel, ev, err := e.svc.CreateRelationship(ctx, worldID, in)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]any{"relationship": rel, "event": ev})
			}
			fmt.Fprintf(os.Stdout, "Created %s (%s)\n", rel.Name, rel.ID)
			fmt.Fprintf(os.Stdout, "  Establishment event: %s at t=%d\n", ev.ID, ev.Time)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&in.Time, "at", 0, "Story time the relationship begins")
	cmd.Flags().StringVar(&in.Description, "description", "", "Static description")
	cmd.Flags().StringVar(&in.Content, "content", "", "Text of the establishment event")
	return cmd
}

func relationshipListCmd() *cobra.Command {
	var entityID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List relationships in the world or of one entity",
		Args:  cobra.NoArgs,
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			var rels []world.Relationship
			var err error
			if entityID != "" {
				rels, err = e.svc.ListRelationshipsByEntity(ctx, worldID, entityID)
			} else {
				rels, err = e.svc.ListRelationships(ctx, worldID)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(rels)
			}
			if len(rels) == 0 {
				fmt.Fprintln(os.Stdout, "No relationships.")
				return nil
			}
			for i := range rels {
				printRelationship(os.Stdout, &rels[i])
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&entityID, "entity", "", "Only relationships touching this entity")
	return cmd
}

func relationshipShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <relationship-id>",
		Short: "Show a relationship and its events",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			rel, err := e.svc.GetRelationship(ctx, worldID, args[0])
			if err != nil {
				return err
			}
			events, err := e.svc.ListEventsByEntity(ctx, worldID, rel.ID, nil)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]any{"relationship": rel, "events": events})
			}
			printRelationship(os.Stdout, rel)
			fmt.Fprintf(os.Stdout, "  %s -> %s (%s)\n", rel.FromID, rel.ToID, rel.TypeID)
			if len(events) > 0 {
				fmt.Fprintln(os.Stdout, "\nEvents:")
				for i := range events {
					printEvent(os.Stdout, &events[i])
				}
			}
			return nil
		}),
	}
}

func relationshipEndCmd() *cobra.Command {
	var in world.EndInput
	cmd := &cobra.Command{
		Use:   "end <relationship-id>",
		Short: "Record the dissolution of a relationship",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			ev, err := e.svc.EndRelationship(ctx, worldID, args[0], in)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(ev)
			}
			printEvent(os.Stdout, ev)
			return nil
		}),
	}
	addEndFlags(cmd, &in)
	return cmd
}

func relationshipUndoEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo-end <relationship-id>",
		Short: "Withdraw a relationship's end event",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			if err := e.svc.UndoEndRelationship(ctx, worldID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s is no longer ended\n", args[0])
			return nil
		}),
	}
}

func relationshipDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <relationship-id>",
		Short: "Soft-delete a relationship",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			if err := e.svc.DeleteRelationship(ctx, worldID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
			return nil
		}),
	}
}

func relationshipNeighboursCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "neighbours <entity-id>",
		Short: "Walk the projected graph from an entity (requires worldline project)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			client, err := openGraph(ctx, e)
			if err != nil {
				return err
			}
			defer client.Close(ctx)

			neighbours, err := client.Neighbours(ctx, args[0], depth)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(neighbours)
			}
			if len(neighbours) == 0 {
				fmt.Fprintln(os.Stdout, "No neighbours found.")
				return nil
			}
			for _, n := range neighbours {
				ended := ""
				if n.Ended {
					ended = " (ended)"
				}
				fmt.Fprintf(os.Stdout, "[%d] %s  %s%s\n", n.Hops, n.ID, n.Name, ended)
				fmt.Fprintf(os.Stdout, "    via %s\n", strings.Join(n.Via, ", "))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 1, "Maximum number of hops")
	return cmd
}
