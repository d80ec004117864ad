package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/issuetriage/internal/application"
	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

var (
	registerLabels []string
	syncLabels     []string
)

var registerCmd = &cobra.Command{
	Use:   "register OWNER/NAME",
	Short: "Track a repository and run its initial sync",
	Long: `Track a GitHub repository and sync its issues.

With one or more --label flags only issues carrying one of those labels are
tracked.

Examples:
  issuetriage register acme/widgets
  issuetriage register acme/widgets --label bug --label regression`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, name, err := splitRepo(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			result, err := a.workspace.Reconciler(a.user.ID).RegisterRepository(cmd.Context(), owner, name, registerLabels)
			if err != nil {
				return err
			}
			printSyncResult(cmd.OutOrStdout(), "registered", result)
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync ID|OWNER/NAME",
	Short: "Re-fetch the issues of a tracked repository",
	Long: `Re-fetch the issues of a tracked repository.

Without --label the repository's label filter is cleared and every issue is
tracked again; with --label the labels are added to the filter.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			id, err := resolveRepositoryID(cmd, a, args[0])
			if err != nil {
				return err
			}

			result, err := a.workspace.Reconciler(a.user.ID).SyncRepository(cmd.Context(), id, syncLabels)
			if err != nil {
				return err
			}
			printSyncResult(cmd.OutOrStdout(), "synced", result)
			return nil
		})
	},
}

var reposCmd = &cobra.Command{
	Use:   "repos OWNER",
	Short: "List an owner's GitHub repositories",
	Long: `List every GitHub repository of a user or organization, marking the
ones already tracked with their local id.

Example:
  issuetriage repos acme`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			repos, err := a.workspace.OwnerRepositories(cmd.Context(), a.user.ID, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, repo := range repos {
				tracked := "-"
				if repo.TrackedID != 0 {
					tracked = strconv.FormatInt(repo.TrackedID, 10)
				}
				fmt.Fprintf(w, "%s/%s\t%s\t%s\n", repo.Owner, repo.Name, tracked, repo.Description)
			}
			fmt.Fprintf(w, "%d repositories\n", len(repos))
			return nil
		})
	},
}

var issuesCmd = &cobra.Command{
	Use:   "issues ID|OWNER/NAME",
	Short: "List the issues synced from a tracked repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			id, err := resolveRepositoryID(cmd, a, args[0])
			if err != nil {
				return err
			}

			repo, issues, err := a.triage.RepositoryIssues(cmd.Context(), a.user.ID, id)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, issue := range issues {
				printIssueLine(w, issue, "")
			}
			fmt.Fprintf(w, "%s: %d issues\n", repo.FullName(), len(issues))
			return nil
		})
	},
}

func init() {
	registerCmd.Flags().StringSliceVarP(&registerLabels, "label", "l", nil, "Only track issues with this label (repeatable)")
	syncCmd.Flags().StringSliceVarP(&syncLabels, "label", "l", nil, "Add this label to the repository's filter (repeatable)")
}

// resolveRepositoryID accepts either a numeric repository id or owner/name.
func resolveRepositoryID(cmd *cobra.Command, a *app, arg string) (int64, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return id, nil
	}

	owner, name, err := splitRepo(arg)
	if err != nil {
		return 0, err
	}
	repo, err := a.stores.Repos.GetByOwnerName(cmd.Context(), a.user.ID, owner, name)
	if err != nil {
		return 0, err
	}
	if repo == nil {
		return 0, fmt.Errorf("%s is not tracked; run issuetriage register first: %w", arg, driven.ErrRepoNotFound)
	}
	return repo.ID, nil
}

func splitRepo(s string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q: want OWNER/NAME", s)
	}
	return owner, name, nil
}

// printIssueLine writes one tab-separated issue summary. status, when set,
// is the issue's project-board column.
func printIssueLine(w io.Writer, issue model.Issue, status string) {
	state := "open"
	if !issue.Open {
		state = "closed"
	}
	cols := []string{strconv.FormatInt(issue.ID, 10), state}
	if status != "" {
		cols = append(cols, status)
	}
	cols = append(cols, issue.Title)
	if len(issue.Tags) > 0 {
		names := make([]string, 0, len(issue.Tags))
		for _, tag := range issue.Tags {
			names = append(names, tag.Name)
		}
		cols = append(cols, "["+strings.Join(names, ", ")+"]")
	}
	fmt.Fprintln(w, strings.Join(cols, "\t"))
}

func printSyncResult(w io.Writer, verb string, result application.SyncResult) {
	repo := result.Repository
	fmt.Fprintf(w, "%s %s (id %d): %d created, %d updated\n",
		verb, repo.FullName(), repo.ID, result.Created, len(result.Updated))
	if !repo.TracksAll() {
		fmt.Fprintf(w, "label filter: %s\n", strings.Join(repo.LabelFilter, ", "))
	}
}
