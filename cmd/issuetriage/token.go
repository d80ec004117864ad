package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored GitHub token of the current user",
	Long: `Manage the GitHub personal access token stored for the current user.

Stored tokens are encrypted with ISSUETRIAGE_SECRET_KEY and take precedence
over ISSUETRIAGE_GITHUB_TOKEN.`,
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [TOKEN]",
	Short: "Validate and store a token (read from standard input when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read token: %w", err)
			}
			token = line
		}
		token = strings.TrimSpace(token)

		return withApp(cmd.Context(), func(a *app) error {
			login, err := a.workspace.Provider().SetToken(cmd.Context(), a.user.ID, token, a.validator)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token stored for %s (authenticates as %s)\n", a.user.Login, login)
			return nil
		})
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.workspace.Provider().ClearToken(cmd.Context(), a.user.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token cleared for %s\n", a.user.Login)
			return nil
		})
	},
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenClearCmd)
}
