package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"worldline/internal/ingest"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [path...]",
		Short: "Seed the world from markdown files with yaml frontmatter",
		Long: `Reads markdown files whose frontmatter declares kind: character, thing or event.
Entities are matched by title, so running ingest twice does not duplicate them.
Paths default to the ingest.paths list of the project config.`,
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = e.cfg.Ingest.Paths
			}
			result, err := ingest.Run(ctx, e.svc, worldID, ingest.Options{
				Paths:   paths,
				Exclude: e.cfg.Ingest.Exclude,
				Logger:  e.logger,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, "Ingestion complete.")
			fmt.Fprintf(os.Stdout, "  Entities created:      %d\n", result.EntitiesCreated)
			fmt.Fprintf(os.Stdout, "  Entities existing:     %d\n", result.EntitiesExisting)
			fmt.Fprintf(os.Stdout, "  Relationships created: %d\n", result.RelationshipsCreated)
			fmt.Fprintf(os.Stdout, "  Entities ended:        %d\n", result.EntitiesEnded)
			fmt.Fprintf(os.Stdout, "  Events created:        %d\n", result.EventsCreated)
			fmt.Fprintf(os.Stdout, "  Files skipped:         %d\n", result.FilesSkipped)

			if len(result.Errors) > 0 {
				fmt.Fprintf(os.Stdout, "\nErrors (%d):\n", len(result.Errors))
				for _, item := range result.Errors {
					fmt.Fprintf(os.Stdout, "  - %v\n", item)
				}
				return fmt.Errorf("ingestion completed with errors")
			}
			return nil
		}),
	}
	return cmd
}
