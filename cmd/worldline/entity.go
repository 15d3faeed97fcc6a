package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"worldline/internal/id"
	"worldline/internal/world"
)

func entityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entity",
		Aliases: []string{"entities"},
		Short:   "Create and manage characters and things",
	}
	cmd.AddCommand(entityCreateCmd())
	cmd.AddCommand(entityListCmd())
	cmd.AddCommand(entityShowCmd())
	cmd.AddCommand(entityUpdateCmd())
	cmd.AddCommand(entityEndCmd())
	cmd.AddCommand(entityUndoEndCmd())
	cmd.AddCommand(entityDeleteCmd())
	return cmd
}

func parseEntityKind(name string) (id.Kind, error) {
	kind := id.ParseKind(name)
	if !kind.IsEntity() {
		return kind, fmt.Errorf("--kind must be character or thing, got %q", name)
	}
	return kind, nil
}

func entityCreateCmd() *cobra.Command {
	var kind string
	var in world.EntityInput
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an entity and its birth event",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			k, err := parseEntityKind(kind)
			if err != nil {
				return err
			}
			in.Kind = k
			in.Name = args[0]
			ent, birth, err := e.svc.CreateEntity(ctx, worldID, in)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]any{"entity": ent, "birth": birth})
			}
			fmt.Fprintf(os.Stdout, "Created %s %s (%s)\n", k, ent.Name, ent.ID)
			fmt.Fprintf(os.Stdout, "  Birth event: %s at t=%d\n", birth.ID, birth.Time)
			return nil
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "character", "character or thing")
	cmd.Flags().StringVar(&in.Description, "description", "", "Static description")
	cmd.Flags().StringVar(&in.NodeID, "node", "", "Classification node ID")
	cmd.Flags().Int64Var(&in.BirthTime, "born", 0, "Story time of the birth event")
	cmd.Flags().StringVar(&in.BirthContent, "content", "", "Text of the birth event")
	return cmd
}

func entityListCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List characters or things",
		Args:  cobra.NoArgs,
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			k, err := parseEntityKind(kind)
			if err != nil {
				return err
			}
			items, err := e.svc.ListEntities(ctx, worldID, k)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(items)
			}
			if len(items) == 0 {
				fmt.Fprintf(os.Stdout, "No %ss.\n", k)
				return nil
			}
			for i := range items {
				printEntity(os.Stdout, &items[i])
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "character", "character or thing")
	return cmd
}

func entityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity-id>",
		Short: "Show an entity, its relationships and its events",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			ent, err := e.svc.GetEntity(ctx, worldID, args[0])
			if err != nil {
				return err
			}
			rels, err := e.svc.ListRelationshipsByEntity(ctx, worldID, ent.ID)
			if err != nil {
				return err
			}
			events, err := e.svc.ListEventsByEntity(ctx, worldID, ent.ID, nil)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]any{"entity": ent, "relationships": rels, "events": events})
			}

			printEntity(os.Stdout, ent)
			if ent.Description != "" {
				fmt.Fprintf(os.Stdout, "  %s\n", ent.Description)
			}
			if len(rels) > 0 {
				fmt.Fprintln(os.Stdout, "\nRelationships:")
				for i := range rels {
					printRelationship(os.Stdout, &rels[i])
				}
			}
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

func entityUpdateCmd() *cobra.Command {
	var name, description, node string
	cmd := &cobra.Command{
		Use:   "update <entity-id>",
		Short: "Change an entity's static fields",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			var patch world.EntityPatch
			if name != "" {
				patch.Name = &name
			}
			if description != "" {
				patch.Description = &description
			}
			if node != "" {
				patch.NodeID = &node
			}
			ent, err := e.svc.UpdateEntity(ctx, worldID, args[0], patch)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(ent)
			}
			printEntity(os.Stdout, ent)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&node, "node", "", "New classification node ID")
	return cmd
}

func entityEndCmd() *cobra.Command {
	var in world.EndInput
	cmd := &cobra.Command{
		Use:   "end <entity-id>",
		Short: "Record an entity's death or destruction",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			ev, err := e.svc.EndEntity(ctx, worldID, args[0], in)
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

func addEndFlags(cmd *cobra.Command, in *world.EndInput) {
	cmd.Flags().Int64Var(&in.Time, "at", 0, "Story time of the end event")
	cmd.Flags().StringVar(&in.Content, "content", "", "Text of the end event")
	cmd.Flags().StringVar(&in.CauseEventID, "cause", "", "Event that caused the end")
	_ = cmd.MarkFlagRequired("at")
}

func entityUndoEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo-end <entity-id>",
		Short: "Withdraw an entity's end event",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			if err := e.svc.UndoEndEntity(ctx, worldID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s is no longer ended\n", args[0])
			return nil
		}),
	}
}

func entityDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity-id>",
		Short: "Soft-delete an entity",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			if err := e.svc.DeleteEntity(ctx, worldID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
			return nil
		}),
	}
}
