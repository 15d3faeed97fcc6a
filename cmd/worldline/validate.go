package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"worldline/internal/validate"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Audit the world for broken references, lifecycle problems and schema mismatches",
		Args:  cobra.NoArgs,
		RunE: inWorld(func(ctx context.Context, e *env, worldID string, args []string) error {
			report, err := validate.Run(ctx, e.schema, e.svc, worldID)
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := printJSON(report.Issues); err != nil {
					return err
				}
				if len(report.Errors()) > 0 {
					return fmt.Errorf("validation found errors")
				}
				return nil
			}

			errorIssues := report.Errors()
			warnIssues := report.Warnings()
			if len(errorIssues) == 0 && len(warnIssues) == 0 {
				fmt.Fprintln(os.Stdout, "No issues found.")
				return nil
			}

			if len(errorIssues) > 0 {
				fmt.Fprintf(os.Stdout, "Errors (%d):\n", len(errorIssues))
				printIssues(os.Stdout, errorIssues)
			}
			if len(warnIssues) > 0 {
				if len(errorIssues) > 0 {
					fmt.Fprintln(os.Stdout, "")
				}
				fmt.Fprintf(os.Stdout, "Warnings (%d):\n", len(warnIssues))
				printIssues(os.Stdout, warnIssues)
			}

			if len(errorIssues) > 0 {
				return fmt.Errorf("validation found errors")
			}
			return nil
		}),
	}
	return cmd
}

func printIssues(out io.Writer, issues []validate.Issue) {
	for _, issue := range issues {
		location := issue.Subject
		if issue.Name != "" {
			location = fmt.Sprintf("%s (%s)", issue.Name, issue.Subject)
		}
		if issue.EventID != "" {
			location = fmt.Sprintf("%s [%s]", location, issue.EventID)
		}
		fmt.Fprintf(out, "  - %s: %s (%s)\n", location, issue.Message, issue.Code)
	}
}
