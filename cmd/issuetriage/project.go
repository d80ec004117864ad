package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var importProjectCmd = &cobra.Command{
	Use:   "import-project OWNER NUMBER",
	Short: "Import the issues linked from a GitHub project board",
	Long: `Import every issue linked from a GitHub project board, recording each
item's status column. OWNER may be an organization or a user. Predicted
category labels are written back to the upstream issues.

Example:
  issuetriage import-project acme 4`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[1])
		if err != nil || number <= 0 {
			return fmt.Errorf("invalid project number %q", args[1])
		}

		return withApp(cmd.Context(), func(a *app) error {
			result, err := a.workspace.Reconciler(a.user.ID).ImportProject(cmd.Context(), args[0], number)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %q (%s #%d): %d created, %d updated, %d linked, %d skipped\n",
				result.Project.Title, result.Project.Owner, result.Project.Number,
				result.Created, result.Updated, result.Linked, result.Skipped)
			return nil
		})
	},
}

var projectIssuesCmd = &cobra.Command{
	Use:   "project-issues OWNER NUMBER",
	Short: "List the issues of an imported project board with their status",
	Long: `List the issues linked from a project board imported with
import-project, together with each item's status column.

Example:
  issuetriage project-issues acme 4`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[1])
		if err != nil || number <= 0 {
			return fmt.Errorf("invalid project number %q", args[1])
		}

		return withApp(cmd.Context(), func(a *app) error {
			project, items, err := a.triage.ProjectIssuesByNumber(cmd.Context(), a.user.ID, args[0], number)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, item := range items {
				printIssueLine(w, item.Issue, item.Status)
			}
			fmt.Fprintf(w, "%q (%s #%d): %d issues\n", project.Title, project.Owner, project.Number, len(items))
			return nil
		})
	},
}
