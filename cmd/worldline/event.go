package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"worldline/internal/world"
)

func eventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "event",
		Aliases: []string{"events"},
		Short:   "Record and edit events",
	}
	cmd.AddCommand(eventCreateCmd())
	cmd.AddCommand(eventListCmd())
	cmd.AddCommand(eventShowCmd())
	cmd.AddCommand(eventUpdateCmd())
	cmd.AddCommand(eventDeleteCmd())
	cmd.AddCommand(eventLinkCmd())
	cmd.AddCommand(eventUnlinkCmd())
	return cmd
}

func eventCreateCmd() *cobra.Command {
	var in world.EventInput
	var sets, relSets []string
	cmd := &cobra.Command{
		Use:   "create <content>",
		Short: "Record an event and the attribute changes it causes",
		Example: `  worldline event create "Ana takes the crown" --at 120 \
    --set chr_01J....title=queen --rel-set rel_01J...:from_to.trust=0`,
		Args: cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			impacts, err := parseImpacts(sets, relSets)
			if err != nil {
				return err
			}
			in.Content = args[0]
			in.Impacts = impacts
			ev, err := e.svc.CreateEvent(ctx, worldID, in)
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
	cmd.Flags().Int64Var(&in.Time, "at", 0, "Story time of the event")
	cmd.Flags().Int64Var(&in.Duration, "duration", 0, "Duration in story time units")
	cmd.Flags().StringVar(&in.PlaceID, "place", "", "Place ID")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Entity change entity_id.attribute=value (repeatable)")
	cmd.Flags().StringArrayVar(&relSets, "rel-set", nil, "Relationship change rel_id:direction.attribute=value (repeatable)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func eventListCmd() *cobra.Command {
	var subjectID string
	var until int64
	var cmd *cobra.Command
	cmd = &cobra.Command{
		Use:   "list",
		Short: "List the world timeline or one subject's events in time order",
		Args:  cobra.NoArgs,
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			var upper *int64
			if cmd.Flags().Changed("until") {
				upper = &until
			}
			var events []world.Event
			var err error
			if subjectID != "" {
				events, err = e.svc.ListEventsByEntity(ctx, worldID, subjectID, upper)
			} else {
				events, err = e.svc.ListEvents(ctx, worldID, upper)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(events)
			}
			if len(events) == 0 {
				fmt.Fprintln(os.Stdout, "No events.")
				return nil
			}
			for i := range events {
				printEvent(os.Stdout, &events[i])
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&subjectID, "subject", "", "Entity or relationship ID")
	cmd.Flags().Int64Var(&until, "until", 0, "Inclusive story-time upper bound")
	return cmd
}

func eventShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show an event and its links",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			ev, err := e.svc.GetEvent(ctx, worldID, args[0])
			if err != nil {
				return err
			}
			links, err := e.svc.ListEventLinks(ctx, worldID, ev.ID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]any{"event": ev, "links": links})
			}
			printEvent(os.Stdout, ev)
			if ev.Content != firstLine(ev.Content) {
				fmt.Fprintf(os.Stdout, "\n%s\n", ev.Content)
			}
			if len(links) > 0 {
				fmt.Fprintln(os.Stdout, "\nLinks:")
				for _, l := range links {
					other := l.EventA
					if other == ev.ID {
						other = l.EventB
					}
					fmt.Fprintf(os.Stdout, "  %s  %s\n", other, l.Description)
				}
			}
			return nil
		}),
	}
}

func eventUpdateCmd() *cobra.Command {
	var at, duration int64
	var place, content string
	var sets, relSets []string
	var clearImpacts bool
	var cmd *cobra.Command
	cmd = &cobra.Command{
		Use:   "update <event-id>",
		Short: "Edit an event; system events only allow time and content",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			var patch world.EventPatch
			if cmd.Flags().Changed("at") {
				patch.Time = &at
			}
			if cmd.Flags().Changed("duration") {
				patch.Duration = &duration
			}
			if cmd.Flags().Changed("place") {
				patch.PlaceID = &place
			}
			if cmd.Flags().Changed("content") {
				patch.Content = &content
			}
			if len(sets) > 0 || len(relSets) > 0 || clearImpacts {
				impacts, err := parseImpacts(sets, relSets)
				if err != nil {
					return err
				}
				patch.Impacts = &impacts
			}
			ev, err := e.svc.UpdateEvent(ctx, worldID, args[0], patch)
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
	cmd.Flags().Int64Var(&at, "at", 0, "New story time")
	cmd.Flags().Int64Var(&duration, "duration", 0, "New duration")
	cmd.Flags().StringVar(&place, "place", "", "New place ID")
	cmd.Flags().StringVar(&content, "content", "", "New text")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Replacement entity change (repeatable)")
	cmd.Flags().StringArrayVar(&relSets, "rel-set", nil, "Replacement relationship change (repeatable)")
	cmd.Flags().BoolVar(&clearImpacts, "clear-impacts", false, "Replace the impacts with an empty set")
	return cmd
}

func eventDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete an ordinary event",
		Args:  cobra.ExactArgs(1),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			if err := e.svc.DeleteEvent(ctx, worldID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
			return nil
		}),
	}
}

func eventLinkCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "link <event-id> <event-id>",
		Short: "Relate two events",
		Args:  cobra.ExactArgs(2),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			link, err := e.svc.CreateEventLink(ctx, worldID, args[0], args[1], description)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(link)
			}
			fmt.Fprintf(os.Stdout, "Linked %s and %s\n", link.EventA, link.EventB)
			return nil
		}),
	}
	cmd.Flags().StringVar(&description, "description", "", "How the events relate")
	return cmd
}

func eventUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <event-id> <event-id>",
		Short: "Remove the link between two events",
		Args:  cobra.ExactArgs(2),
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			if err := e.svc.DeleteEventLink(ctx, worldID, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Unlinked %s and %s\n", args[0], args[1])
			return nil
		}),
	}
}
