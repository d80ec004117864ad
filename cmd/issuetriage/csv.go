package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var importCSVCmd = &cobra.Command{
	Use:   "import-csv FILE",
	Short: "Merge issues from a CSV spreadsheet",
	Long: `Merge issues from a CSV file, or from standard input when FILE is "-".

The first row is a header. Columns, by position:
  url, title, state (open|closed), category, observation, body, discarded (true|false)

Rows are merged by url. Failing rows are reported and skipped; the command
exits non-zero when any row failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var src io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()
			src = f
		}

		return withApp(cmd.Context(), func(a *app) error {
			importer, err := a.workspace.CSVImporter(cmd.Context(), a.user.ID)
			if err != nil {
				return err
			}
			result, err := importer.Import(cmd.Context(), src)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d rows: %d created, %d updated, %d failed\n",
				result.Rows, result.Created, result.Updated, result.Errors)
			for _, re := range result.RowErrors {
				fmt.Fprintln(cmd.ErrOrStderr(), re.Error())
			}
			if result.Errors > 0 {
				return fmt.Errorf("%d of %d rows failed", result.Errors, result.Rows)
			}
			return nil
		})
	},
}
