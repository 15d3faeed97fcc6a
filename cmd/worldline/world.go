package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"worldline/internal/world"
)

func worldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "world",
		Short: "Create and manage worlds",
	}
	cmd.AddCommand(worldCreateCmd())
	cmd.AddCommand(worldListCmd())
	cmd.AddCommand(worldShowCmd())
	cmd.AddCommand(worldUpdateCmd())
	cmd.AddCommand(worldDeleteCmd())
	return cmd
}

func worldCreateCmd() *cobra.Command {
	var in world.WorldInput
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a world and its epoch event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			in.Name = args[0]
			w, epoch, err := e.svc.CreateWorld(ctx, e.cfg.Owner, in)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(w)
			}
			fmt.Fprintf(os.Stdout, "Created world %s (%s)\n", w.Name, w.ID)
			fmt.Fprintf(os.Stdout, "  Epoch event: %s\n", epoch.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Description, "description", "", "World description")
	cmd.Flags().StringVar(&in.Settings, "settings", "", "Free-form settings")
	cmd.Flags().StringVar(&in.Epoch, "epoch", "", "Text of the epoch event at time 0")
	return cmd
}

func worldListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the owner's worlds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			worlds, err := e.svc.ListWorlds(ctx, e.cfg.Owner)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(worlds)
			}
			if len(worlds) == 0 {
				fmt.Fprintln(os.Stdout, "No worlds.")
				return nil
			}
			for _, w := range worlds {
				fmt.Fprintf(os.Stdout, "%s  %s\n", w.ID, w.Name)
			}
			return nil
		},
	}
}

func worldShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the selected world",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			worldID, err := e.world()
			if err != nil {
				return err
			}
			w, err := e.svc.GetWorld(ctx, worldID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(w)
			}
			fmt.Fprintf(os.Stdout, "%s  %s\n", w.ID, w.Name)
			if w.Description != "" {
				fmt.Fprintf(os.Stdout, "  %s\n", w.Description)
			}
			fmt.Fprintf(os.Stdout, "  Owner: %s\n", w.OwnerID)
			fmt.Fprintf(os.Stdout, "  Epoch: %s (%s)\n", w.Epoch, w.EpochEventID)
			return nil
		},
	}
}

func worldUpdateCmd() *cobra.Command {
	var name, description, settings, epoch string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change the selected world's name, description, settings or epoch text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			worldID, err := e.world()
			if err != nil {
				return err
			}
			var patch world.WorldPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("settings") {
				patch.Settings = &settings
			}
			if flags.Changed("epoch") {
				patch.Epoch = &epoch
			}
			w, err := e.svc.UpdateWorld(ctx, worldID, patch)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(w)
			}
			fmt.Fprintf(os.Stdout, "Updated world %s\n", w.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&settings, "settings", "", "New settings")
	cmd.Flags().StringVar(&epoch, "epoch", "", "New epoch event text")
	return cmd
}

func worldDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the selected world and everything in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("deleting a world cannot be undone; pass --yes to confirm")
			}
			ctx := context.Background()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			worldID, err := e.world()
			if err != nil {
				return err
			}
			if err := e.svc.DeleteWorld(ctx, worldID); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Deleted world %s\n", worldID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}
